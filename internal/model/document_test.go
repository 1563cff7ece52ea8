package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowClosed(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
		want  bool
	}{
		{"no window", nil, nil, false},
		{"inside window", &past, &future, false},
		{"end passed", nil, &past, true},
		{"not yet open", &future, nil, true},
		{"open ended, started", &past, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Document{StartDate: tt.start, EndDate: tt.end}
			assert.Equal(t, tt.want, d.WindowClosed(now))
		})
	}
}

func TestSetMetaAllocates(t *testing.T) {
	d := &Document{}
	d.SetMeta(MetaApprovedBy, "admin-1")
	assert.Equal(t, "admin-1", d.Metadata[MetaApprovedBy])

	f := &DocumentFile{}
	f.SetMeta(FileMetaTaskID, "t-1")
	assert.Equal(t, "t-1", f.Metadata[FileMetaTaskID])
}
