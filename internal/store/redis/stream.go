package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-robot/internal/model"
)

// StreamSource reads bars that an upstream market-data process XADDs to
// "bars:{symbol}" with a "data" field holding the JSON bar.
type StreamSource struct {
	client  *goredis.Client
	symbols []string
	lastID  map[string]string // stream -> last delivered id
	count   int64
}

// NewStreamSource reads the given symbols. fromStart replays each stream from
// its first entry; otherwise only entries added after construction are read.
func NewStreamSource(ctx context.Context, client *goredis.Client, symbols []string, fromStart bool) (*StreamSource, error) {
	s := &StreamSource{
		client:  client,
		symbols: symbols,
		lastID:  make(map[string]string, len(symbols)),
		count:   1000,
	}
	for _, sym := range symbols {
		stream := model.BarStreamKey(sym)
		s.lastID[stream] = "0-0"
		if fromStart {
			continue
		}
		// Start after the current tail
		msgs, err := client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("xrevrange %s: %w", stream, err)
		}
		if len(msgs) > 0 {
			s.lastID[stream] = msgs[0].ID
		}
	}
	return s, nil
}

// FetchLatest returns every bar added since the previous call, without blocking.
func (s *StreamSource) FetchLatest(ctx context.Context) ([]model.Bar, error) {
	if len(s.symbols) == 0 {
		return nil, nil
	}
	args := make([]string, 0, 2*len(s.symbols))
	for _, sym := range s.symbols {
		args = append(args, model.BarStreamKey(sym))
	}
	for _, sym := range s.symbols {
		args = append(args, s.lastID[model.BarStreamKey(sym)])
	}

	var out []model.Bar
	for {
		res, err := s.client.XRead(ctx, &goredis.XReadArgs{
			Streams: args,
			Count:   s.count,
			Block:   -1, // no BLOCK: the loop paces itself
		}).Result()
		if errors.Is(err, goredis.Nil) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("xread: %w", err)
		}

		more := false
		for _, st := range res {
			if int64(len(st.Messages)) >= s.count {
				more = true
			}
			for _, msg := range st.Messages {
				s.lastID[st.Stream] = msg.ID
				if b, ok := decodeBar(msg); ok {
					out = append(out, b)
				}
			}
		}
		// Advance the ids for the next page
		for i, sym := range s.symbols {
			args[len(s.symbols)+i] = s.lastID[model.BarStreamKey(sym)]
		}
		if !more {
			return out, nil
		}
	}
}

// ReadRange returns the bars of symbol whose stream entries fall in
// [start, end], using the millisecond part of the entry id.
func (s *StreamSource) ReadRange(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	lo, hi := "-", "+"
	if !start.IsZero() {
		lo = strconv.FormatInt(start.UnixMilli(), 10)
	}
	if !end.IsZero() {
		hi = strconv.FormatInt(end.UnixMilli(), 10)
	}
	msgs, err := s.client.XRange(ctx, model.BarStreamKey(symbol), lo, hi).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", symbol, err)
	}
	out := make([]model.Bar, 0, len(msgs))
	for _, msg := range msgs {
		if b, ok := decodeBar(msg); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func decodeBar(msg goredis.XMessage) (model.Bar, bool) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return model.Bar{}, false
	}
	var b model.Bar
	if err := json.NewDecoder(strings.NewReader(data)).Decode(&b); err != nil {
		log.Printf("[redis-stream] bad bar %s: %v", msg.ID, err)
		return model.Bar{}, false
	}
	return b, true
}

// AppendBar XADDs a bar to its symbol stream. Used by feeders and tests.
func AppendBar(ctx context.Context, client *goredis.Client, b model.Bar, maxLen int64) (string, error) {
	return client.XAdd(ctx, &goredis.XAddArgs{
		Stream: b.StreamKey(),
		MaxLen: maxLen,
		Approx: maxLen > 0,
		Values: map[string]interface{}{"data": string(b.JSON())},
	}).Result()
}
