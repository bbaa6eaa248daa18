// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	opcua "github.com/edgeo-scada/uadp"
	"github.com/edgeo-scada/uadp/pubsub"
)

type messageView struct {
	Route          string        `json:"route"`
	Source         string        `json:"source,omitempty"`
	PublisherID    string        `json:"publisher_id,omitempty"`
	GroupVersion   *uint32       `json:"group_version,omitempty"`
	SequenceNumber *uint16       `json:"sequence_number,omitempty"`
	Timestamp      *time.Time    `json:"timestamp,omitempty"`
	Chunk          *chunkView    `json:"chunk,omitempty"`
	DataSets       []dataSetView `json:"datasets,omitempty"`
}

type chunkView struct {
	WriterID       uint16 `json:"writer_id"`
	SequenceNumber uint16 `json:"sequence_number"`
	Offset         uint32 `json:"offset"`
	TotalSize      uint32 `json:"total_size"`
	Size           int    `json:"size,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Complete       bool   `json:"complete,omitempty"`
}

type dataSetView struct {
	WriterID       uint16      `json:"writer_id,omitempty"`
	MessageType    string      `json:"message_type"`
	Encoding       string      `json:"encoding"`
	SequenceNumber *uint16     `json:"sequence_number,omitempty"`
	Fields         []fieldView `json:"fields,omitempty"`
}

type fieldView struct {
	Index  int         `json:"index"`
	Name   string      `json:"name,omitempty"`
	Type   string      `json:"type"`
	Value  interface{} `json:"value"`
	Status string      `json:"status,omitempty"`
}

func newMessageView(source string, nm *pubsub.NetworkMessage) messageView {
	mv := messageView{
		Route:     pubsub.RouteOf(nm).String(),
		Source:    source,
		Timestamp: nm.Timestamp,
	}
	if nm.PublisherID.Type != pubsub.PublisherIDNone {
		mv.PublisherID = nm.PublisherID.String()
	}
	if gh := nm.GroupHeader; gh != nil {
		mv.GroupVersion = gh.GroupVersion
		mv.SequenceNumber = gh.SequenceNumber
	}
	if c := nm.Chunk; c != nil {
		mv.Chunk = &chunkView{
			WriterID:       c.DataSetWriterID,
			SequenceNumber: c.MessageSequenceNumber,
			Offset:         c.ChunkOffset,
			TotalSize:      c.TotalSize,
			Size:           len(c.Data),
			Duplicate:      c.Duplicate,
			Complete:       c.Complete,
		}
		if !c.Complete {
			return mv
		}
	}

	for i := range nm.DataSetMessages {
		dsm := &nm.DataSetMessages[i]
		dv := dataSetView{
			MessageType:    dsm.Header.MessageType().String(),
			Encoding:       dsm.Header.FieldEncoding().String(),
			SequenceNumber: dsm.Header.SequenceNumber,
		}
		if ph := nm.PayloadHeader; ph != nil && i < len(ph.DataSetWriterIDs) {
			dv.WriterID = ph.DataSetWriterIDs[i]
		}
		if dsm.Header.MessageType() == pubsub.MessageTypeDeltaFrame && len(dsm.Deltas) > 0 {
			for _, d := range dsm.Deltas {
				dv.Fields = append(dv.Fields, newFieldView(int(d.Index), &d.Field))
			}
		} else {
			for j := range dsm.Fields {
				dv.Fields = append(dv.Fields, newFieldView(j, &dsm.Fields[j]))
			}
		}
		mv.DataSets = append(mv.DataSets, dv)
	}
	return mv
}

func newFieldView(index int, f *pubsub.DataSetField) fieldView {
	fv := fieldView{
		Index: index,
		Name:  f.Meta.Name,
		Type:  f.Value.Type.String(),
		Value: f.Value.Value,
	}
	if b, ok := fv.Value.([]byte); ok {
		fv.Value = hex.EncodeToString(b)
	}
	if f.Status != opcua.StatusGood {
		fv.Status = f.Status.String()
	}
	return fv
}

// printMessage writes nm in the selected output format.
func printMessage(w io.Writer, source string, nm *pubsub.NetworkMessage) error {
	mv := newMessageView(source, nm)
	if format == "json" {
		return json.NewEncoder(w).Encode(mv)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Message: %s", mv.Route)
	if mv.Source != "" {
		fmt.Fprintf(&b, " from %s", mv.Source)
	}
	b.WriteByte('\n')
	if mv.SequenceNumber != nil {
		fmt.Fprintf(&b, "  Sequence: %d\n", *mv.SequenceNumber)
	}
	if mv.Timestamp != nil {
		fmt.Fprintf(&b, "  Timestamp: %s\n", mv.Timestamp.Format(time.RFC3339Nano))
	}
	if c := mv.Chunk; c != nil {
		fmt.Fprintf(&b, "  Chunk: writer=%d seq=%d offset=%d total=%d", c.WriterID, c.SequenceNumber, c.Offset, c.TotalSize)
		switch {
		case c.Duplicate:
			b.WriteString(" (duplicate)")
		case c.Complete:
			b.WriteString(" (complete)")
		}
		b.WriteByte('\n')
	}
	for i, ds := range mv.DataSets {
		fmt.Fprintf(&b, "  DataSet %d: writer=%d %s/%s", i, ds.WriterID, ds.MessageType, ds.Encoding)
		if ds.SequenceNumber != nil {
			fmt.Fprintf(&b, " seq=%d", *ds.SequenceNumber)
		}
		b.WriteByte('\n')
		for _, f := range ds.Fields {
			name := f.Name
			if name == "" {
				name = fmt.Sprintf("#%d", f.Index)
			}
			fmt.Fprintf(&b, "    %s = %v (%s)", name, f.Value, f.Type)
			if f.Status != "" {
				fmt.Fprintf(&b, " [%s]", f.Status)
			}
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// parseHex accepts hex with optional whitespace, colons and a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\t', '\r', ':':
			return -1
		}
		return r
	}, s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return data, nil
}
