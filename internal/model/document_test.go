package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_ValueScan(t *testing.T) {
	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	var s StringList
	require.NoError(t, s.Scan(`["fechaEmision","total"]`))
	assert.Equal(t, StringList{FieldIssueDate, FieldTotal}, s)
	assert.True(t, s.Contains(FieldTotal))
	assert.False(t, s.Contains(FieldVendorName))

	require.NoError(t, s.Scan(nil))
	assert.Nil(t, s)

	assert.Error(t, s.Scan(42))
}

func TestJSONB(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"a":1}`)))
	assert.JSONEq(t, `{"a":1}`, string(j))

	v, err := JSONB(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	b, err := JSONB(nil).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestQueueItem_IsDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		item QueueItem
		want bool
	}{
		{name: "pending without retry time", item: QueueItem{Status: QueueStatusPending}, want: true},
		{name: "pending retry in past", item: QueueItem{Status: QueueStatusPending, NextRetryAt: &past}, want: true},
		{name: "pending retry now", item: QueueItem{Status: QueueStatusPending, NextRetryAt: &now}, want: true},
		{name: "pending retry in future", item: QueueItem{Status: QueueStatusPending, NextRetryAt: &future}, want: false},
		{name: "done", item: QueueItem{Status: QueueStatusDone}, want: false},
		{name: "error", item: QueueItem{Status: QueueStatusError}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.IsDue(now))
		})
	}
}
