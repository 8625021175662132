package alm

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Entity is a remote record bound to the collection endpoint it was created
// under or fetched from. Until Post succeeds it is detached and has no id.
type Entity struct {
	session    *Session
	collection target
	record     Record
}

// Type returns the entity type, e.g. "test" or "run-step".
func (e *Entity) Type() string { return e.record.Type }

// SetType sets the entity type sent on Post/Put.
func (e *Entity) SetType(t string) { e.record.Type = t }

// Fields returns a copy of the fields in wire order.
func (e *Entity) Fields() []Field {
	out := make([]Field, len(e.record.Fields))
	copy(out, e.record.Fields)
	return out
}

// Lookup returns the first value recorded for name.
func (e *Entity) Lookup(name string) (string, bool) {
	for _, f := range e.record.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Get is Lookup with a *NoSuchFieldError for absent fields.
func (e *Entity) Get(name string) (string, error) {
	if v, ok := e.Lookup(name); ok {
		return v, nil
	}
	return "", &NoSuchFieldError{Type: e.record.Type, Field: name}
}

// ID returns the server-issued id.
func (e *Entity) ID() (string, error) { return e.Get("id") }

// Set replaces the first field called name, or appends it.
func (e *Entity) Set(name, value string) {
	for i := range e.record.Fields {
		if e.record.Fields[i].Name == name {
			e.record.Fields[i].Value = value
			return
		}
	}
	e.Add(name, value)
}

// Add appends a field even when one with the same name exists.
func (e *Entity) Add(name, value string) {
	e.record.Fields = append(e.record.Fields, Field{Name: name, Value: value})
}

// Post creates the entity and replaces the local state with the server's echo,
// which carries the new id and any server-computed fields.
func (e *Entity) Post(ctx context.Context) error {
	body, err := e.session.sendXML(ctx, http.MethodPost, e.collection, e.record)
	if err != nil {
		return fmt.Errorf("create %s: %w", e.describe(), err)
	}
	r, err := UnmarshalRecord(body)
	if err != nil {
		return fmt.Errorf("create %s: %w", e.describe(), err)
	}
	e.record = r
	return nil
}

// Put updates the entity by id. The response body is not merged back.
func (e *Entity) Put(ctx context.Context) error {
	id, err := e.ID()
	if err != nil {
		return fmt.Errorf("update %s: %w", e.describe(), err)
	}
	if _, err := e.session.sendXML(ctx, http.MethodPut, e.collection.path(id), e.record); err != nil {
		return fmt.Errorf("update %s %s: %w", e.describe(), id, err)
	}
	return nil
}

// Attach uploads r as a binary attachment of the entity, named filename.
func (e *Entity) Attach(ctx context.Context, filename string, r io.Reader) error {
	id, err := e.ID()
	if err != nil {
		return fmt.Errorf("attach to %s: %w", e.describe(), err)
	}
	req, err := http.NewRequest(http.MethodPost, e.collection.path(id, "attachments").String(), r)
	if err != nil {
		return err
	}
	req.Header.Set("Slug", filename)
	req.Header.Set("Content-Type", mediaOctet)
	req.Header.Set("Accept", mediaXML)
	if _, err := e.session.send(ctx, req); err != nil {
		return fmt.Errorf("attach %q to %s %s: %w", filename, e.describe(), id, err)
	}
	return nil
}

func (e *Entity) describe() string {
	if e.record.Type != "" {
		return e.record.Type
	}
	return "entity"
}
