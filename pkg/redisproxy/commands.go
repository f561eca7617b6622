package redisproxy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Command families, used as API key scopes.
const (
	FamilyStrings = "strings"
	FamilyHashes  = "hashes"
	FamilyLists   = "lists"
	FamilySets    = "sets"
	FamilyPing    = "ping"
)

// commandFamilies maps each supported command to its scope family.
var commandFamilies = map[string]string{
	"ping":      FamilyPing,
	"set":       FamilyStrings,
	"get":       FamilyStrings,
	"del":       FamilyStrings,
	"incr":      FamilyStrings,
	"decr":      FamilyStrings,
	"exists":    FamilyStrings,
	"expire":    FamilyStrings,
	"ttl":       FamilyStrings,
	"hset":      FamilyHashes,
	"hget":      FamilyHashes,
	"lpush":     FamilyLists,
	"lpop":      FamilyLists,
	"sadd":      FamilySets,
	"smembers":  FamilySets,
	"sismember": FamilySets,
	"srem":      FamilySets,
}

// CommandFamily returns the scope family for a command, or "" when the
// command is not one of the mapped families.
func CommandFamily(command string) string {
	return commandFamilies[strings.ToLower(command)]
}

// errWrongArity marks a command invoked with the wrong argument count.
var errWrongArity = errors.New("wrong number of arguments")

// execute runs a mapped command against the client and returns a
// JSON-serializable result. Missing keys yield nil rather than an error.
func execute(ctx context.Context, client *redis.Client, command string, args []string) (any, error) {
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%w for %q: got %d, want %d", errWrongArity, command, len(args), n)
		}
		return nil
	}

	switch strings.ToLower(command) {
	case "ping":
		return client.Ping(ctx).Result()

	case "set":
		if err := need(2); err != nil {
			return nil, err
		}
		return client.Set(ctx, args[0], args[1], 0).Result()

	case "get":
		if err := need(1); err != nil {
			return nil, err
		}
		return nilOnMissing(client.Get(ctx, args[0]).Result())

	case "del":
		if err := need(1); err != nil {
			return nil, err
		}
		return client.Del(ctx, args[0]).Result()

	case "incr":
		if err := need(1); err != nil {
			return nil, err
		}
		return client.Incr(ctx, args[0]).Result()

	case "decr":
		if err := need(1); err != nil {
			return nil, err
		}
		return client.Decr(ctx, args[0]).Result()

	case "exists":
		if err := need(1); err != nil {
			return nil, err
		}
		return client.Exists(ctx, args[0]).Result()

	case "expire":
		if err := need(2); err != nil {
			return nil, err
		}
		seconds, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid expiry seconds %q", args[1])
		}
		return client.Expire(ctx, args[0], time.Duration(seconds)*time.Second).Result()

	case "ttl":
		if err := need(1); err != nil {
			return nil, err
		}
		ttl, err := client.TTL(ctx, args[0]).Result()
		if err != nil {
			return nil, err
		}
		// Redis conventions: -1 no expiry, -2 missing key.
		return int64(ttl / time.Second), nil

	case "hset":
		if err := need(3); err != nil {
			return nil, err
		}
		return client.HSet(ctx, args[0], args[1], args[2]).Result()

	case "hget":
		if err := need(2); err != nil {
			return nil, err
		}
		return nilOnMissing(client.HGet(ctx, args[0], args[1]).Result())

	case "lpush":
		if err := need(2); err != nil {
			return nil, err
		}
		return client.LPush(ctx, args[0], args[1]).Result()

	case "lpop":
		if err := need(1); err != nil {
			return nil, err
		}
		return nilOnMissing(client.LPop(ctx, args[0]).Result())

	case "sadd":
		if err := need(2); err != nil {
			return nil, err
		}
		return client.SAdd(ctx, args[0], args[1]).Result()

	case "smembers":
		if err := need(1); err != nil {
			return nil, err
		}
		return client.SMembers(ctx, args[0]).Result()

	case "sismember":
		if err := need(2); err != nil {
			return nil, err
		}
		return client.SIsMember(ctx, args[0], args[1]).Result()

	case "srem":
		if err := need(2); err != nil {
			return nil, err
		}
		return client.SRem(ctx, args[0], args[1]).Result()

	default:
		// Generic dispatch for POSTed commands outside the mapped set.
		cmdArgs := make([]any, 0, len(args)+1)
		cmdArgs = append(cmdArgs, command)
		for _, a := range args {
			cmdArgs = append(cmdArgs, a)
		}
		return nilOnMissing(client.Do(ctx, cmdArgs...).Result())
	}
}

// nilOnMissing converts redis.Nil into a nil result.
func nilOnMissing[T any](v T, err error) (any, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
