package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
)

// CalendarStore keeps each practitioner day as a sorted set scored by start
// time. Members are "appointmentID|startUnixMilli|endUnixMilli". A sibling key
// marks the day as hydrated; both expire together so an evicted day is simply
// rebuilt from Postgres.
type CalendarStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCalendarStore(client *redis.Client, ttl time.Duration) *CalendarStore {
	return &CalendarStore{client: client, ttl: ttl}
}

func dayKey(practitionerID uuid.UUID, day string) string {
	return fmt.Sprintf("calendar:%s:%s", practitionerID, day)
}

func warmKey(practitionerID uuid.UUID, day string) string {
	return dayKey(practitionerID, day) + ":warm"
}

func encodeMember(iv calendar.Interval) string {
	return fmt.Sprintf("%s|%d|%d", iv.AppointmentID, iv.Start.UnixMilli(), iv.End.UnixMilli())
}

func decodeMember(practitionerID uuid.UUID, member string) (calendar.Interval, error) {
	parts := strings.Split(member, "|")
	if len(parts) != 3 {
		return calendar.Interval{}, fmt.Errorf("malformed calendar member %q", member)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return calendar.Interval{}, fmt.Errorf("calendar member id: %w", err)
	}
	start, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return calendar.Interval{}, fmt.Errorf("calendar member start: %w", err)
	}
	end, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return calendar.Interval{}, fmt.Errorf("calendar member end: %w", err)
	}
	return calendar.Interval{
		AppointmentID:  id,
		PractitionerID: practitionerID,
		Start:          time.UnixMilli(start),
		End:            time.UnixMilli(end),
	}, nil
}

func (s *CalendarStore) Warm(ctx context.Context, practitionerID uuid.UUID, day string) (bool, error) {
	n, err := s.client.Exists(ctx, warmKey(practitionerID, day)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

func (s *CalendarStore) Load(ctx context.Context, practitionerID uuid.UUID, day string, ivs []calendar.Interval) error {
	key := dayKey(practitionerID, day)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(ivs) > 0 {
			members := make([]redis.Z, 0, len(ivs))
			for _, iv := range ivs {
				members = append(members, redis.Z{Score: float64(iv.Start.UnixMilli()), Member: encodeMember(iv)})
			}
			pipe.ZAdd(ctx, key, members...)
			pipe.Expire(ctx, key, s.ttl)
		}
		pipe.Set(ctx, warmKey(practitionerID, day), "1", s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis load calendar day: %w", err)
	}
	return nil
}

func (s *CalendarStore) Intervals(ctx context.Context, practitionerID uuid.UUID, day string) ([]calendar.Interval, error) {
	members, err := s.client.ZRange(ctx, dayKey(practitionerID, day), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}

	out := make([]calendar.Interval, 0, len(members))
	for _, m := range members {
		iv, err := decodeMember(practitionerID, m)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

func (s *CalendarStore) Add(ctx context.Context, day string, iv calendar.Interval) error {
	key := dayKey(iv.PractitionerID, day)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(iv.Start.UnixMilli()), Member: encodeMember(iv)})
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, warmKey(iv.PractitionerID, day), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add interval: %w", err)
	}
	return nil
}

func (s *CalendarStore) Remove(ctx context.Context, day string, iv calendar.Interval) error {
	if err := s.client.ZRem(ctx, dayKey(iv.PractitionerID, day), encodeMember(iv)).Err(); err != nil {
		return fmt.Errorf("redis remove interval: %w", err)
	}
	return nil
}
