package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/osiDTDr/ai-contract-review/internal/events"
	"github.com/osiDTDr/ai-contract-review/internal/review"
)

type fakeStreams struct {
	added   []*redis.XAddArgs
	expired map[string]time.Duration
	addErr  error

	readArgs *redis.XReadArgs
	readRes  []redis.XStream
	readErr  error
}

func (f *fakeStreams) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.addErr != nil {
		return redis.NewStringResult("", f.addErr)
	}
	f.added = append(f.added, a)
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeStreams) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if f.expired == nil {
		f.expired = map[string]time.Duration{}
	}
	f.expired[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStreams) XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd {
	f.readArgs = a
	return redis.NewXStreamSliceCmdResult(f.readRes, f.readErr)
}

var _ = Describe("Stream", func() {
	var (
		ctx    context.Context
		fake   *fakeStreams
		stream *events.Stream
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeStreams{}
		stream = events.New(fake, events.Config{Prefix: "review_events", MaxLen: 50, TTL: time.Hour}, nil)
	})

	It("publishes trace entries to the review's stream with a TTL", func() {
		score := 7
		entry := review.TraceEntry{
			StageName:  review.StageScore,
			Status:     review.StatusCompleted,
			DurationMs: 3,
			Snapshot:   map[review.Field]any{review.FieldScore: &score},
		}

		Expect(stream.Publish(ctx, 42, entry)).To(Succeed())

		Expect(fake.added).To(HaveLen(1))
		args := fake.added[0]
		Expect(args.Stream).To(Equal("review_events:42"))
		Expect(args.MaxLen).To(Equal(int64(50)))
		Expect(args.Approx).To(BeTrue())
		values := args.Values.(map[string]any)
		Expect(values["type"]).To(Equal(events.TypeStage))
		Expect(values["stage"]).To(Equal(review.StageScore))
		Expect(values["entry"]).To(ContainSubstring(`"score"`))
		Expect(fake.expired).To(HaveKeyWithValue("review_events:42", time.Hour))
	})

	It("marks the end of a failed review with its error kind", func() {
		Expect(stream.Done(ctx, 42, "failed", review.KindDependency)).To(Succeed())

		values := fake.added[0].Values.(map[string]any)
		Expect(values["type"]).To(Equal(events.TypeDone))
		Expect(values["error_kind"]).To(Equal("dependency_failure"))
	})

	It("omits the error kind on success", func() {
		Expect(stream.Done(ctx, 1, "completed", review.KindNone)).To(Succeed())
		Expect(fake.added[0].Values.(map[string]any)).NotTo(HaveKey("error_kind"))
	})

	It("wraps XADD failures", func() {
		fake.addErr = errors.New("connection refused")
		err := stream.Done(ctx, 1, "completed", review.KindNone)
		Expect(err).To(MatchError(ContainSubstring("publish review event")))
	})

	Describe("Read", func() {
		It("decodes stream messages into events", func() {
			fake.readRes = []redis.XStream{{
				Stream: "review_events:9",
				Messages: []redis.XMessage{
					{ID: "1-0", Values: map[string]any{"type": "stage", "stage": "parse", "status": "completed", "entry": `{"parse":{}}`}},
					{ID: "2-0", Values: map[string]any{"type": "done", "status": "failed", "error_kind": "document_empty"}},
				},
			}}

			evs, err := stream.Read(ctx, 9, "", time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.readArgs.Streams).To(Equal([]string{"review_events:9", "0"}))
			Expect(evs).To(HaveLen(2))
			Expect(evs[0].Stage).To(Equal("parse"))
			Expect(json.Valid(evs[0].Entry)).To(BeTrue())
			Expect(evs[1].ErrorKind).To(Equal("document_empty"))
		})

		It("treats a timed-out block as no events", func() {
			fake.readErr = redis.Nil
			evs, err := stream.Read(ctx, 9, "5-0", time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(evs).To(BeEmpty())
		})
	})
})
