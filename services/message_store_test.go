package services

import (
	"context"
	"testing"

	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAppend_AssignsIdentityAndUnread(t *testing.T) {
	m := newTestMetrics()
	store := NewMessageStore(openTestDB(t), m)
	ctx := context.Background()
	d, p := doctor(uuid.New()), patient(uuid.New())

	draft := textFrom(p, d.ID, "I have a headache")
	draft.IsRead = true
	msg, err := store.Append(ctx, draft)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, msg.ID)
	require.False(t, msg.CreatedAt.IsZero())
	require.False(t, msg.IsRead)
	require.Equal(t, models.PatientKind, msg.SenderKind)
	require.Equal(t, models.DoctorKind, msg.ReceiverKind)
	require.Equal(t, 1.0, testutil.ToFloat64(m.MessagesAppended))

	stored, err := store.FetchRange(ctx, d.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, msg.ID, stored[0].ID)
	require.True(t, msg.CreatedAt.Equal(stored[0].CreatedAt))
}

func TestAppend_RejectsInvalid(t *testing.T) {
	store := NewMessageStore(openTestDB(t), newTestMetrics())
	ctx := context.Background()
	d, p := doctor(uuid.New()), patient(uuid.New())
	empty := ""

	cases := map[string]models.Message{
		"no content":       textFrom(p, d.ID, ""),
		"empty image only": {SenderID: p.ID, SenderKind: p.Kind, ReceiverID: d.ID, ReceiverKind: d.Kind, ImageURL: &empty},
		"no receiver":      textFrom(p, uuid.Nil, "hi"),
		"no sender":        textFrom(patient(uuid.Nil), d.ID, "hi"),
		"bad kind":         {SenderID: p.ID, SenderKind: "nurse", ReceiverID: d.ID, ReceiverKind: d.Kind, Text: "hi"},
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := store.Append(ctx, draft)
			require.ErrorIs(t, err, ErrInvalidMessage)
		})
	}

	all, err := store.FetchRange(ctx, d.ID, p.ID)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestAppend_AttachmentOnly(t *testing.T) {
	store := NewMessageStore(openTestDB(t), newTestMetrics())
	d, p := doctor(uuid.New()), patient(uuid.New())
	audio := "https://res.cloudinary.test/voice.ogg"

	msg, err := store.Append(context.Background(), models.Message{
		SenderID: d.ID, SenderKind: d.Kind, ReceiverID: p.ID, ReceiverKind: p.Kind, AudioURL: &audio,
	})
	require.NoError(t, err)
	require.Equal(t, audio, *msg.AudioURL)
}

func TestFetchRange_OrderedBothDirections(t *testing.T) {
	store := NewMessageStore(openTestDB(t), newTestMetrics())
	store.now = frozenClock()
	ctx := context.Background()
	d, p, other := doctor(uuid.New()), patient(uuid.New()), patient(uuid.New())

	for _, draft := range []models.Message{
		textFrom(p, d.ID, "one"),
		textFrom(d, p.ID, "two"),
		textFrom(other, d.ID, "elsewhere"),
		textFrom(p, d.ID, "three"),
		textFrom(d, p.ID, "four"),
	} {
		_, err := store.Append(ctx, draft)
		require.NoError(t, err)
	}

	got, err := store.FetchRange(ctx, d.ID, p.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three", "four"}, texts(got))
	for i := 1; i < len(got); i++ {
		require.True(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
	}

	reversed, err := store.FetchRange(ctx, p.ID, d.ID)
	require.NoError(t, err)
	require.Equal(t, texts(got), texts(reversed))
}

func TestFetchRange_EmptyIsNotNil(t *testing.T) {
	store := NewMessageStore(openTestDB(t), newTestMetrics())
	got, err := store.FetchRange(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestDeleteConversation(t *testing.T) {
	store := NewMessageStore(openTestDB(t), newTestMetrics())
	ctx := context.Background()
	d, p, other := doctor(uuid.New()), patient(uuid.New()), patient(uuid.New())

	for _, draft := range []models.Message{
		textFrom(p, d.ID, "a"),
		textFrom(d, p.ID, "b"),
		textFrom(other, d.ID, "keep"),
	} {
		_, err := store.Append(ctx, draft)
		require.NoError(t, err)
	}

	removed, err := store.DeleteConversation(ctx, d.ID, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	got, err := store.FetchRange(ctx, d.ID, p.ID)
	require.NoError(t, err)
	require.Empty(t, got)

	kept, err := store.FetchRange(ctx, d.ID, other.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"keep"}, texts(kept))

	removed, err = store.DeleteConversation(ctx, d.ID, p.ID)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestCounterparts(t *testing.T) {
	store := NewMessageStore(openTestDB(t), newTestMetrics())
	ctx := context.Background()
	d, p1, p2 := doctor(uuid.New()), patient(uuid.New()), patient(uuid.New())

	for _, draft := range []models.Message{
		textFrom(p1, d.ID, "a"),
		textFrom(p1, d.ID, "b"),
		textFrom(d, p2.ID, "c"),
		textFrom(patient(uuid.New()), uuid.New(), "unrelated"),
	} {
		_, err := store.Append(ctx, draft)
		require.NoError(t, err)
	}

	ids, err := store.Counterparts(ctx, d.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{p1.ID, p2.ID}, ids)
}

func TestStore_StorageFailure(t *testing.T) {
	db := openTestDB(t)
	store := NewMessageStore(db, newTestMetrics())
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	d, p := doctor(uuid.New()), patient(uuid.New())
	_, err = store.Append(context.Background(), textFrom(p, d.ID, "hello"))
	require.ErrorIs(t, err, ErrStorageFailure)

	_, err = store.FetchRange(context.Background(), d.ID, p.ID)
	require.ErrorIs(t, err, ErrStorageFailure)

	_, err = store.DeleteConversation(context.Background(), d.ID, p.ID)
	require.ErrorIs(t, err, ErrStorageFailure)
}
