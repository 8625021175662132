package alm

import (
	"encoding/xml"
	"fmt"
)

// Field is one named value of a record.
type Field struct {
	Name  string
	Value string
}

// Record is the wire form of an entity: a type plus ordered fields.
// Field names are expected to be unique but duplicates are kept in order.
type Record struct {
	Type   string
	Fields []Field
}

type entityXML struct {
	XMLName xml.Name   `xml:"Entity"`
	Type    string     `xml:"Type,attr"`
	Fields  []fieldXML `xml:"Fields>Field"`
}

type fieldXML struct {
	Name   string   `xml:"Name,attr"`
	Values []string `xml:"Value"`
}

type entitiesXML struct {
	XMLName      xml.Name    `xml:"Entities"`
	TotalResults int         `xml:"TotalResults,attr"`
	Entities     []entityXML `xml:"Entity"`
}

type domainsXML struct {
	XMLName xml.Name `xml:"Domains"`
	Domains []struct {
		Name string `xml:"Name,attr"`
	} `xml:"Domain"`
}

type projectsXML struct {
	XMLName  xml.Name `xml:"Projects"`
	Projects []struct {
		Name string `xml:"Name,attr"`
	} `xml:"Project"`
}

type restExceptionXML struct {
	XMLName    xml.Name `xml:"QCRestException"`
	ID         string   `xml:"Id"`
	Title      string   `xml:"Title"`
	StackTrace string   `xml:"StackTrace"`
}

func (r Record) toXML() entityXML {
	out := entityXML{Type: r.Type, Fields: make([]fieldXML, 0, len(r.Fields))}
	for _, f := range r.Fields {
		out.Fields = append(out.Fields, fieldXML{Name: f.Name, Values: []string{f.Value}})
	}
	return out
}

func recordFromXML(x entityXML) Record {
	r := Record{Type: x.Type, Fields: make([]Field, 0, len(x.Fields))}
	for _, f := range x.Fields {
		v := ""
		if len(f.Values) > 0 {
			v = f.Values[0]
		}
		r.Fields = append(r.Fields, Field{Name: f.Name, Value: v})
	}
	return r
}

// MarshalRecord encodes a record as an <Entity> document.
func MarshalRecord(r Record) ([]byte, error) {
	b, err := xml.Marshal(r.toXML())
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	return append([]byte(xml.Header), b...), nil
}

// UnmarshalRecord decodes an <Entity> document.
func UnmarshalRecord(data []byte) (Record, error) {
	var x entityXML
	if err := xml.Unmarshal(data, &x); err != nil {
		return Record{}, fmt.Errorf("decode entity: %w", err)
	}
	return recordFromXML(x), nil
}

// MarshalRecords encodes an <Entities> collection page.
func MarshalRecords(records []Record, total int) ([]byte, error) {
	x := entitiesXML{TotalResults: total, Entities: make([]entityXML, 0, len(records))}
	for _, r := range records {
		x.Entities = append(x.Entities, r.toXML())
	}
	b, err := xml.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("encode entities: %w", err)
	}
	return append([]byte(xml.Header), b...), nil
}

// UnmarshalRecords decodes an <Entities> collection page.
func UnmarshalRecords(data []byte) ([]Record, error) {
	var x entitiesXML
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	out := make([]Record, 0, len(x.Entities))
	for _, e := range x.Entities {
		out = append(out, recordFromXML(e))
	}
	return out, nil
}

// MarshalRemoteError encodes the structured server exception body.
func MarshalRemoteError(e *RemoteServiceError) ([]byte, error) {
	return xml.Marshal(restExceptionXML{ID: e.ID, Title: e.Title, StackTrace: e.StackTrace})
}

func unmarshalRemoteError(data []byte) (*RemoteServiceError, bool) {
	var x restExceptionXML
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, false
	}
	return &RemoteServiceError{ID: x.ID, Title: x.Title, StackTrace: x.StackTrace}, true
}
