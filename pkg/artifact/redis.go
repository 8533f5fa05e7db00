package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"

	"github.com/mchmarny/hscore/pkg/errs"
)

const (
	RedisKeyDefault = "hscore:artifact"

	fieldVersion = "version"
	fieldEncoder = "encoder"
	fieldModel   = "model"
)

// RedisStore keeps the pair as one hash. A single HSET writes all fields,
// which redis applies atomically.
type RedisStore struct {
	client *redis.Client
	key    string
}

// OpenRedisStore parses a redis URL. The optional "key" query parameter names
// the hash; it is stripped before the URL is handed to the client.
func OpenRedisStore(location string) (*RedisStore, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing redis location: %w", err)
	}
	q := u.Query()
	key := q.Get("key")
	q.Del("key")
	u.RawQuery = q.Encode()

	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), key), nil
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = RedisKeyDefault
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Location() string {
	return fmt.Sprintf("redis://%s/%d#%s", s.client.Options().Addr, s.client.Options().DB, s.key)
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Save(ctx context.Context, p *Pair) error {
	encBlob, modBlob, err := encodeHalves(p)
	if err != nil {
		return err
	}
	err = s.client.HSet(ctx, s.key,
		fieldVersion, p.Version,
		fieldEncoder, encBlob,
		fieldModel, modBlob,
	).Err()
	if err != nil {
		return fmt.Errorf("writing artifact %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*Pair, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading artifact %s: %w", s.key, err)
	}

	encBlob, okEnc := vals[fieldEncoder]
	modBlob, okMod := vals[fieldModel]
	if !okEnc || !okMod {
		return nil, errs.Wrapf(errs.ErrArtifactNotFound, "load",
			"key %s: encoder present=%t, model present=%t", s.key, okEnc, okMod)
	}

	p, err := decodeHalves([]byte(encBlob), []byte(modBlob))
	if err != nil {
		return nil, err
	}
	if v := vals[fieldVersion]; v != p.Version {
		return nil, errs.Wrapf(errs.ErrArtifactCorrupt, "load", "hash version %q, payload %q", v, p.Version)
	}
	return p, nil
}
