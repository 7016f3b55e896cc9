package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultTags(t *testing.T) {
	ok := Success(42)
	v, isOk := ok.Value()
	assert.True(t, isOk)
	assert.Equal(t, 42, v)
	assert.Nil(t, ok.Err())

	bad := Failure[int](NewError(KindTimeout, "R2", "dial timeout"))
	_, isOk = bad.Value()
	assert.False(t, isOk)
	require.NotNil(t, bad.Err())
	assert.Equal(t, KindTimeout, bad.Err().Kind)
}

func TestFailureNilNeverSucceeds(t *testing.T) {
	r := Failure[string](nil)
	assert.False(t, r.Ok())
	assert.Equal(t, KindRemoteExecution, r.Err().Kind)
}

func TestZeroResultIsNotSuccess(t *testing.T) {
	var r Result[int]
	assert.False(t, r.Ok())
	assert.False(t, r.Valid())
}

func TestErase(t *testing.T) {
	v, ok := Erase(Success(3)).Value()
	require.True(t, ok)
	assert.Equal(t, any(3), v)

	e := Erase(Failure[int](NewError(KindAuth, "R1", "denied")))
	assert.Equal(t, KindAuth, e.Err().Kind)
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Errorf(KindNotFound, "host %q", "R3"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.True(t, KindValidation.PreDispatch())
	assert.False(t, KindTimeout.PreDispatch())
}

func TestAggregateOutcome(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry[string]
		want    Outcome
	}{
		{
			name: "all succeeded",
			entries: []Entry[string]{
				{Host: "R1", Result: Success("a")},
				{Host: "R2", Result: Success("b")},
			},
			want: OutcomeSuccess,
		},
		{
			name: "all failed",
			entries: []Entry[string]{
				{Host: "R1", Result: Failure[string](NewError(KindAuth, "R1", "x"))},
			},
			want: OutcomeFailure,
		},
		{
			name: "mixed",
			entries: []Entry[string]{
				{Host: "R1", Result: Success("a")},
				{Host: "R2", Result: Failure[string](NewError(KindTimeout, "R2", "x"))},
			},
			want: OutcomePartial,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregate(tt.entries)
			assert.Equal(t, tt.want, agg.Outcome())
			assert.Equal(t, len(tt.entries), agg.Summary().Total)
		})
	}
}

func TestAggregateJSONKeepsTargetOrder(t *testing.T) {
	agg := NewAggregate([]Entry[map[string]any]{
		{Host: "zeta", Result: Success(map[string]any{"vendor": "Cisco"})},
		{Host: "alpha", Result: Failure[map[string]any](NewError(KindTimeout, "alpha", "no response"))},
	})

	raw, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.Equal(t,
		`{"zeta":{"vendor":"Cisco"},"alpha":{"error":{"kind":"timeout_error","message":"no response"}}}`,
		string(raw))

	s := agg.Summary()
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.ByKind[KindTimeout])
}

func TestPayload(t *testing.T) {
	agg := NewAggregate([]Entry[int]{{Host: "R1", Result: Success(1)}})
	p := NewPayload(uuid.Nil, "getter", "facts", "all", time.Now(), agg)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, OutcomeSuccess, p.Outcome)
	assert.Equal(t, []string{"R1"}, p.Data.Hosts())

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data":{"R1":1}`)
}
