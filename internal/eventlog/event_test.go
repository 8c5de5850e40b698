package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, ev Event)
	}{
		{
			name:    "complete message",
			payload: `{"seq":12,"ts":1700000042.5,"level":"warn","kind":"upload","message":"slow chunk","fields":{"chunk":3}}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, int64(12), ev.Sequence)
				assert.Equal(t, 1700000042.5, ev.Timestamp)
				assert.Equal(t, LevelWarn, ev.Level)
				assert.Equal(t, "upload", ev.Kind)
				assert.Equal(t, "slow chunk", ev.Message)
				assert.Equal(t, float64(3), ev.Fields["chunk"])
			},
		},
		{
			name:    "missing level defaults to info",
			payload: `{"seq":1,"ts":1700000000,"kind":"scan","message":"starting"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, LevelInfo, ev.Level)
			},
		},
		{
			name:    "missing seq",
			payload: `{"ts":1700000000,"message":"no ordering key"}`,
			wantErr: true,
		},
		{
			name:    "missing ts",
			payload: `{"seq":4,"message":"no clock"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `::garbage::`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tc.payload))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, ev)
		})
	}
}

func TestEventTime(t *testing.T) {
	ev := Event{Timestamp: 1700000000.25}
	want := time.Unix(1700000000, 250000000)
	assert.WithinDuration(t, want, ev.Time(), time.Microsecond)
}
