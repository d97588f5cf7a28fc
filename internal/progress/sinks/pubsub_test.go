package sinks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/stagebridge/internal/progress"
)

func TestPubSubSinkPublishesSessionEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "bridge-sessions")
	require.NoError(t, err)

	sink, err := NewPubSubSink(topic, nil)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, sink.Consume(ctx, sessionRecords(progress.UUIDToBytes(id), time.Unix(1700000000, 0))))
	require.NoError(t, sink.Close(ctx))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, id.String(), msgs[0].Attributes["session_id"])
	require.Equal(t, "success", msgs[0].Attributes["result"])

	var notice SessionNotice
	require.NoError(t, json.Unmarshal(msgs[0].Data, &notice))
	require.Equal(t, id.String(), notice.SessionID)
	require.Equal(t, uint64(6), notice.Events)
	require.Equal(t, int64(6000), notice.DurationMS)
	require.Empty(t, notice.Error)
}

func TestPubSubSinkRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := NewPubSubSink(nil, nil)
	require.Error(t, err)
}
