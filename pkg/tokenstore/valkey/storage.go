// Package valkeystore provides a Valkey backed token storage.
package valkeystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/session-client/pkg/tokenstore"
)

var _ = tokenstore.Storage(&Storage{})

var errTransactionAborted = errors.New("transaction aborted")

type Storage struct {
	valkey valkey.Client
	prefix string
}

func NewStorage(valkeyClient valkey.Client, prefix string) *Storage {
	prefix = strings.TrimSuffix(prefix, ":")
	return &Storage{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

// Load reads all keys with a single MGET.
func (s *Storage) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	msgs, err := s.valkey.Do(ctx, s.valkey.B().Mget().Key(s.keys(keys)...).Build()).ToArray()
	if err != nil {
		return nil, fmt.Errorf("executing mget command: %w", err)
	}

	for i, msg := range msgs {
		if i >= len(keys) {
			break
		}

		value, err := msg.ToString()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				continue
			}

			return nil, fmt.Errorf("reading mget value: %w", err)
		}

		values[keys[i]] = value
	}

	return values, nil
}

// Apply wraps all changes in MULTI/EXEC.
func (s *Storage) Apply(ctx context.Context, set map[string]string, remove []string) error {
	if len(set) == 0 && len(remove) == 0 {
		return nil
	}

	cmds := make(valkey.Commands, 0, len(set)+3)
	cmds = append(cmds, s.valkey.B().Multi().Build())
	if len(remove) > 0 {
		cmds = append(cmds, s.valkey.B().Del().Key(s.keys(remove)...).Build())
	}

	for key, value := range set {
		cmds = append(cmds, s.valkey.B().Set().Key(s.key(key)).Value(value).Build())
	}

	cmds = append(cmds, s.valkey.B().Exec().Build())

	resps := s.valkey.DoMulti(ctx, cmds...)
	for _, resp := range resps[:len(resps)-1] {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("queuing transaction: %w", err)
		}
	}

	return execResult(resps[len(resps)-1])
}

// execResult fails on an aborted EXEC and on any queued command that failed inside it.
func execResult(resp valkey.ValkeyResult) error {
	msgs, err := resp.ToArray()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return errTransactionAborted
		}

		return fmt.Errorf("executing transaction: %w", err)
	}

	for i, msg := range msgs {
		if err := msg.Error(); err != nil {
			return fmt.Errorf("executing transaction command %d: %w", i, err)
		}
	}

	return nil
}

func (s *Storage) key(key string) string {
	if s.prefix == "" {
		return key
	}

	return s.prefix + ":" + key
}

func (s *Storage) keys(keys []string) []string {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}

	return prefixed
}
