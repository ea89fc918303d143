// Package subscribers reads the alert subscriber list from a YAML file.
package subscribers

import (
	"context"
	"fmt"
	"os"

	"github.com/couchcryptid/disaster-alert-service/internal/alert"
	"gopkg.in/yaml.v3"
)

type document struct {
	Subscribers []alert.Subscriber `yaml:"subscribers"`
}

// File is an alert.SubscriberSource backed by a YAML file. The file is read
// on every call so edits take effect on the next alert cycle.
//
//	subscribers:
//	  - id: u-1
//	    region: Kerala
//	    city: Kochi
//	    alerts_enabled: true
type File struct {
	path string
}

var _ alert.SubscriberSource = (*File)(nil)

// NewFile creates a File source for path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Subscribers(ctx context.Context) ([]alert.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read subscribers file: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse subscribers file %s: %w", f.path, err)
	}
	for i, s := range doc.Subscribers {
		if s.ID == "" {
			return nil, fmt.Errorf("subscribers file %s: entry %d has no id", f.path, i)
		}
	}
	return doc.Subscribers, nil
}
