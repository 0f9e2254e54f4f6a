package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/monitor"
	"github.com/MikeSquared-Agency/moniker/internal/profile"
)

// fakeBus answers requests with canned JSON and records everything sent.
type fakeBus struct {
	replies   map[string]string
	err       error
	published map[string][]json.RawMessage
	requested map[string][]json.RawMessage
	deadline  bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		replies:   make(map[string]string),
		published: make(map[string][]json.RawMessage),
		requested: make(map[string][]json.RawMessage),
	}
}

func (b *fakeBus) Publish(subject string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.published[subject] = append(b.published[subject], raw)
	return nil
}

func (b *fakeBus) Request(ctx context.Context, subject string, data, out any) error {
	_, b.deadline = ctx.Deadline()
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.requested[subject] = append(b.requested[subject], raw)
	if b.err != nil {
		return b.err
	}
	reply, ok := b.replies[subject]
	if !ok {
		return errors.New("no responders")
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(reply), out)
}

func newTestClient(bus *fakeBus) *Client {
	return NewClient(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		payload string
		want    any
	}{
		{
			name:    "member joined",
			subject: SubjectMemberJoined,
			payload: `{"group_id":"g","participant_id":"p"}`,
			want:    interview.BeginRequested{Target: interview.Target{GroupID: "g", ParticipantID: "p"}},
		},
		{
			name:    "acknowledged",
			subject: SubjectAcknowledged,
			payload: `{"group_id":"g","participant_id":"p"}`,
			want:    interview.StartAcknowledged{Target: interview.Target{GroupID: "g", ParticipantID: "p"}},
		},
		{
			name:    "answer with button value",
			subject: SubjectAnswer,
			payload: `{"group_id":"g","participant_id":"p","question_index":3,"choice":"yes"}`,
			want: interview.AnswerReceived{
				Target:        interview.Target{GroupID: "g", ParticipantID: "p"},
				QuestionIndex: 3,
				Choice:        profile.Affirmative,
			},
		},
		{
			name:    "free text",
			subject: SubjectFreeText,
			payload: `{"group_id":"g","participant_id":"p","field":"trigger","text":"observer"}`,
			want: interview.FreeTextReceived{
				Target: interview.Target{GroupID: "g", ParticipantID: "p"},
				Field:  interview.FieldTrigger,
				Text:   "observer",
			},
		},
		{
			name:    "identity changed",
			subject: SubjectIdentityChanged,
			payload: `{"group_id":"g","participant_id":"p","old_value":"A","new_value":"B"}`,
			want:    monitor.IdentityChanged{GroupID: "g", ParticipantID: "p", OldValue: "A", NewValue: "B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.subject, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		payload string
	}{
		{"malformed json", SubjectBegin, `{`},
		{"missing participant", SubjectBegin, `{"group_id":"g"}`},
		{"unknown choice", SubjectAnswer, `{"group_id":"g","participant_id":"p","question_index":0,"choice":"perhaps"}`},
		{"question out of range", SubjectAnswer, `{"group_id":"g","participant_id":"p","question_index":8,"choice":"no"}`},
		{"unknown field", SubjectFreeText, `{"group_id":"g","participant_id":"p","field":"bio","text":"x"}`},
		{"unknown subject", "moniker.gateway.event.typing", `{"group_id":"g","participant_id":"p"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.subject, []byte(tt.payload))
			assert.Error(t, err)
		})
	}

	_, err := Decode("moniker.gateway.event.typing", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownSubject)
}

func TestSendInteractive(t *testing.T) {
	bus := newFakeBus()
	bus.replies[SubjectSend] = `{"delivered":true}`
	c := newTestClient(bus)

	ok, err := c.SendInteractive(context.Background(), interview.Prompt{GroupID: "g", ParticipantID: "p", Kind: interview.PromptWelcome, Text: "hi"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, bus.deadline)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(bus.requested[SubjectSend][0], &sent))
	assert.Equal(t, "welcome", sent["kind"])
}

func TestApply(t *testing.T) {
	bus := newFakeBus()
	c := newTestClient(bus)
	ctx := context.Background()

	bus.replies[SubjectApply] = `{"ok":true}`
	require.NoError(t, c.Apply(ctx, "g", "p", "ARC-07-Index-Level", "interview completed"))

	bus.replies[SubjectApply] = `{"ok":false,"error":"missing permission"}`
	err := c.Apply(ctx, "g", "p", "ARC-07-Index-Level", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing permission")

	bus.err = context.DeadlineExceeded
	assert.ErrorIs(t, c.Apply(ctx, "g", "p", "x", "y"), context.DeadlineExceeded)
}

func TestDirectory(t *testing.T) {
	bus := newFakeBus()
	bus.replies[SubjectDirectory] = `{"identifiers":["ARC-07-Index-Level","OBS-Cybin"]}`
	c := newTestClient(bus)

	ids, err := c.Displayed(context.Background(), "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"ARC-07-Index-Level", "OBS-Cybin"}, ids)

	current, err := c.Current(context.Background(), "g", "p")
	require.NoError(t, err)
	assert.Equal(t, "ARC-07-Index-Level", current)

	bus.replies[SubjectDirectory] = `{"identifiers":[]}`
	_, err = c.Current(context.Background(), "g", "p")
	assert.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestRecentActor(t *testing.T) {
	bus := newFakeBus()
	c := newTestClient(bus)
	ctx := context.Background()

	bus.replies[SubjectAuditRecent] = `{"found":true,"actor_id":"mod-1","privilege":"elevated"}`
	actor, err := c.RecentActor(ctx, "p", "g", monitor.ActionIdentityUpdate, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, monitor.PrivilegeElevated, actor.Privilege)

	var sent auditRequest
	require.NoError(t, json.Unmarshal(bus.requested[SubjectAuditRecent][0], &sent))
	assert.Equal(t, int64(5000), sent.WindowMillis)

	bus.replies[SubjectAuditRecent] = `{"found":false}`
	actor, err = c.RecentActor(ctx, "p", "g", monitor.ActionIdentityUpdate, 5*time.Second)
	require.NoError(t, err)
	assert.Nil(t, actor)
}

func TestWarnParticipantPublishes(t *testing.T) {
	bus := newFakeBus()
	c := newTestClient(bus)

	require.NoError(t, c.WarnParticipant(context.Background(), "g", "p", "restored"))
	require.Len(t, bus.published[SubjectWarn], 1)
	assert.JSONEq(t, `{"group_id":"g","participant_id":"p","message":"restored"}`, string(bus.published[SubjectWarn][0]))
}

func TestAnnouncements(t *testing.T) {
	bus := newFakeBus()
	c := newTestClient(bus)
	ctx := context.Background()

	require.NoError(t, c.AnnounceAssigned(ctx, "g", "p", "OBS-Cybin"))
	require.NoError(t, c.AnnounceReverted(ctx, "g", "p", "OBS-Cybin", "Hacker"))

	var a Assignment
	require.NoError(t, json.Unmarshal(bus.published[SubjectIdentityAssigned][0], &a))
	assert.Equal(t, "OBS-Cybin", a.Identifier)

	var r Reversion
	require.NoError(t, json.Unmarshal(bus.published[SubjectIdentityReverted][0], &r))
	assert.Equal(t, "Hacker", r.Attempted)
	assert.Equal(t, "OBS-Cybin", r.Restored)
}
