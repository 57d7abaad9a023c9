package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"docqa-go/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, errors.New("drained")
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

// fakeProcessor 按 MD5 决定前几次调用失败；failures 为负数时始终失败。
type fakeProcessor struct {
	failures  map[string]int
	processed []string
	abandoned []string
	onProcess func()
}

func (p *fakeProcessor) Process(ctx context.Context, task tasks.IngestTask) error {
	p.processed = append(p.processed, task.FileMD5)
	if p.onProcess != nil {
		p.onProcess()
	}
	n := p.failures[task.FileMD5]
	if n != 0 {
		if n > 0 {
			p.failures[task.FileMD5] = n - 1
		}
		return errors.New("transient failure")
	}
	return nil
}

func (p *fakeProcessor) Abandon(ctx context.Context, task tasks.IngestTask, cause error) {
	p.abandoned = append(p.abandoned, task.FileMD5)
}

func newTestConsumer(r messageReader, p TaskProcessor, rdb *redis.Client, maxAttempts int) *Consumer {
	c := newConsumer(r, p, rdb, maxAttempts)
	c.retryInterval = time.Millisecond
	return c
}

func message(t *testing.T, offset int64, md5 string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(tasks.IngestTask{FileMD5: md5, FileName: "a.pdf", ObjectName: "staging/" + md5 + ".pdf", RecordID: 1})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestHandleRetriesUntilMaxAttempts(t *testing.T) {
	mr, rdb := newRedis(t)
	proc := &fakeProcessor{failures: map[string]int{"abc": -1}}
	c := newTestConsumer(&fakeReader{}, proc, rdb, 3)

	assert.True(t, c.handle(context.Background(), message(t, 7, "abc")))
	assert.Equal(t, []string{"abc", "abc", "abc"}, proc.processed)
	assert.Equal(t, []string{"abc"}, proc.abandoned)
	assert.False(t, mr.Exists("kafka:attempts:abc"))
}

func TestHandleSuccessAfterRetryClearsAttempts(t *testing.T) {
	mr, rdb := newRedis(t)
	proc := &fakeProcessor{failures: map[string]int{"abc": 1}}
	c := newTestConsumer(&fakeReader{}, proc, rdb, 3)

	assert.True(t, c.handle(context.Background(), message(t, 1, "abc")))
	assert.Equal(t, []string{"abc", "abc"}, proc.processed)
	assert.Empty(t, proc.abandoned)
	assert.False(t, mr.Exists("kafka:attempts:abc"))
}

func TestHandleResumesAttemptsFromRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set("kafka:attempts:abc", "2"))
	proc := &fakeProcessor{failures: map[string]int{"abc": -1}}
	c := newTestConsumer(&fakeReader{}, proc, rdb, 3)

	// 重启前已失败两次，本次只再尝试一次
	assert.True(t, c.handle(context.Background(), message(t, 1, "abc")))
	assert.Equal(t, []string{"abc"}, proc.processed)
	assert.Equal(t, []string{"abc"}, proc.abandoned)
}

func TestHandleMalformedMessageIsCommitted(t *testing.T) {
	proc := &fakeProcessor{}
	c := newTestConsumer(&fakeReader{}, proc, nil, 3)
	assert.True(t, c.handle(context.Background(), kafka.Message{Value: []byte("{")}))
	assert.Empty(t, proc.processed)
}

func TestHandleRedisDownCountsInMemory(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()
	proc := &fakeProcessor{failures: map[string]int{"abc": -1}}
	c := newTestConsumer(&fakeReader{}, proc, rdb, 2)

	assert.True(t, c.handle(context.Background(), message(t, 1, "abc")))
	assert.Len(t, proc.processed, 2)
	assert.Equal(t, []string{"abc"}, proc.abandoned)
}

func TestHandleCanceledIsNotCommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &fakeProcessor{failures: map[string]int{"abc": -1}, onProcess: cancel}
	c := newTestConsumer(&fakeReader{}, proc, nil, 3)

	assert.False(t, c.handle(ctx, message(t, 1, "abc")))
	assert.Len(t, proc.processed, 1)
	assert.Empty(t, proc.abandoned)
}

func TestRunRetriesBeforeFetchingNext(t *testing.T) {
	_, rdb := newRedis(t)
	reader := &fakeReader{msgs: []kafka.Message{message(t, 1, "abc"), message(t, 2, "def")}}
	proc := &fakeProcessor{failures: map[string]int{"abc": 1}}
	c := newTestConsumer(reader, proc, rdb, 3)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"abc", "abc", "def"}, proc.processed)
	assert.Equal(t, []int64{1, 2}, reader.committed)
	assert.Empty(t, proc.abandoned)
}

func TestRunAbandonsAfterMaxAttempts(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{message(t, 1, "abc"), message(t, 2, "def")}}
	proc := &fakeProcessor{failures: map[string]int{"abc": -1}}
	c := newTestConsumer(reader, proc, nil, 2)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"abc", "abc", "def"}, proc.processed)
	assert.Equal(t, []int64{1, 2}, reader.committed)
	assert.Equal(t, []string{"abc"}, proc.abandoned)
}
