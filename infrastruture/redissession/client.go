// Package redissession implements the shared session on Redis. Properties and
// shared objects live in hashes, membership in a sorted set ordered by join
// time, events travel over one pub/sub channel per room and the authority role
// is a redsync lease whose value is the holder's participant id.
package redissession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var _ i.SessionService = &Client{}

var (
	ErrNotJoined  = errors.New("not joined")
	ErrNilClient  = errors.New("nil redis client")
	ErrNilLogger  = errors.New("nil logger")
	errLeaseTaken = errors.New("authority lease held by another participant")
)

// Options configures a Client.
type Options struct {
	Prefix   string
	RoomID   string
	Capacity int
	// Lease is the authority lease expiry. It is renewed every Lease/3.
	Lease time.Duration
}

// Client is one participant's connection to a Redis-backed room.
type Client struct {
	rdb    *redis.Client
	locker *redsync.Redsync
	lease  *redsync.Mutex
	id     uuid.UUID
	opts   Options
	logger i.Logger

	mu        sync.Mutex
	joined    bool
	authority uuid.UUID
	holding   bool
	vacant    int
	pubsub    *redis.PubSub
	subs      map[*session.Subscription]struct{}
}

// New creates a client for participant id. Call Join before using it.
func New(rdb *redis.Client, id uuid.UUID, opts Options, logger i.Logger) (*Client, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if opts.Prefix == "" {
		opts.Prefix = "mazesync"
	}
	if opts.RoomID == "" {
		opts.RoomID = "default"
	}
	if opts.Lease <= 0 {
		opts.Lease = 3 * time.Second
	}

	c := &Client{
		rdb:    rdb,
		locker: redsync.New(goredis.NewPool(rdb)),
		id:     id,
		opts:   opts,
		logger: logger,
		subs:   make(map[*session.Subscription]struct{}),
	}
	c.lease = c.locker.NewMutex(c.key("authority"),
		redsync.WithExpiry(opts.Lease),
		redsync.WithTries(1),
		redsync.WithGenValueFunc(func() (string, error) { return id.String(), nil }),
	)
	return c, nil
}

func (c *Client) key(parts ...string) string {
	k := c.opts.Prefix + ":" + c.opts.RoomID
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (c *Client) playerKey(id uuid.UUID) string {
	return c.key("player", id.String())
}

// Join adds the participant to the room and starts listening for events.
// Events published before Join returns are not delivered.
func (c *Client) Join(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joined {
		return nil
	}

	mutex := c.locker.NewMutex(c.key("join_lock"))
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("acquiring join lock: %w", err)
	}
	defer func() {
		_, _ = mutex.UnlockContext(ctx)
	}()

	members := c.key("members")
	if _, err := c.rdb.ZScore(ctx, members, c.id.String()).Result(); errors.Is(err, redis.Nil) {
		count, err := c.rdb.ZCard(ctx, members).Result()
		if err != nil {
			return err
		}
		if c.opts.Capacity > 0 && count >= int64(c.opts.Capacity) {
			return session.ErrRoomFull
		}
		z := redis.Z{Score: float64(time.Now().UnixNano()), Member: c.id.String()}
		if err := c.rdb.ZAddNX(ctx, members, z).Err(); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	ps := c.rdb.Subscribe(ctx, c.key("events"))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribing to room events: %w", err)
	}
	c.pubsub = ps
	c.joined = true

	if holder, err := c.leaseHolder(ctx); err == nil {
		c.authority = holder
	}
	return c.publish(ctx, session.Event{Kind: session.EventMembership, Participant: c.id, Joined: true})
}

// Run pumps room events into local subscriptions and keeps the authority
// lease. It returns when ctx is done or the event stream fails.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	ps := c.pubsub
	c.mu.Unlock()
	if ps == nil {
		return ErrNotJoined
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.receive(ctx, ps) })
	g.Go(func() error { return c.maintainLease(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) receive(ctx context.Context, ps *redis.PubSub) error {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, err := session.DecodeEvent([]byte(msg.Payload))
			if err != nil {
				c.logger.Warning(fmt.Sprintf("dropping event: %s", err))
				continue
			}
			c.deliver(e)
		}
	}
}

func (c *Client) maintainLease(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Lease / 3)
	defer ticker.Stop()

	c.refreshAuthority(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.refreshAuthority(ctx)
		}
	}
}

// refreshAuthority renews a held lease or, when the lease is vacant, tries to
// take it. The earliest member bids at once; later members wait one more tick
// so the role follows join order when everyone is healthy.
func (c *Client) refreshAuthority(ctx context.Context) {
	c.mu.Lock()
	holding := c.holding
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return
	}

	if holding {
		if ok, err := c.lease.ExtendContext(ctx); ok && err == nil {
			return
		}
		c.logger.Warning("authority lease lost")
		c.mu.Lock()
		c.holding = false
		c.mu.Unlock()
	}

	holder, err := c.leaseHolder(ctx)
	if err != nil {
		c.logger.Error(fmt.Sprintf("reading authority lease: %s", err))
		return
	}
	if holder != uuid.Nil {
		c.observeAuthority(holder)
		return
	}

	c.observeAuthority(uuid.Nil)
	first, err := c.rdb.ZRange(ctx, c.key("members"), 0, 0).Result()
	if err != nil {
		return
	}
	c.mu.Lock()
	c.vacant++
	eager := len(first) == 1 && first[0] == c.id.String()
	bid := eager || c.vacant > 1
	c.mu.Unlock()
	if !bid {
		return
	}

	if err := c.acquire(ctx); err == nil {
		c.logger.Info("acquired authority lease")
	}
}

func (c *Client) acquire(ctx context.Context) error {
	if err := c.lease.TryLockContext(ctx); err != nil {
		return errLeaseTaken
	}
	c.mu.Lock()
	c.holding = true
	c.mu.Unlock()
	c.observeAuthority(c.id)
	return nil
}

func (c *Client) leaseHolder(ctx context.Context) (uuid.UUID, error) {
	raw, err := c.rdb.Get(ctx, c.key("authority")).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: authority %q", session.ErrMalformed, raw)
	}
	return id, nil
}

// observeAuthority records holder and emits a local authority event on change.
func (c *Client) observeAuthority(holder uuid.UUID) {
	c.mu.Lock()
	if holder != uuid.Nil {
		c.vacant = 0
	}
	if c.authority == holder {
		c.mu.Unlock()
		return
	}
	c.authority = holder
	c.mu.Unlock()
	c.deliver(session.Event{Kind: session.EventAuthority, Authority: holder})
}

func (c *Client) deliver(e session.Event) {
	if !e.For(c.id) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for s := range c.subs {
		s.Push(e)
	}
}

func (c *Client) publish(ctx context.Context, e session.Event) error {
	return c.rdb.Publish(ctx, c.key("events"), session.EncodeEvent(e)).Err()
}

func (c *Client) ensureJoined() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return ErrNotJoined
	}
	return nil
}

// LocalID returns the participant id of this client.
func (c *Client) LocalID() uuid.UUID { return c.id }

// IsAuthority reports whether this client holds the authority lease.
func (c *Client) IsAuthority() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holding
}

// Authority returns the last observed lease holder.
func (c *Client) Authority() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authority, c.authority != uuid.Nil
}

// ParticipantCount returns the number of members in the room.
func (c *Client) ParticipantCount(ctx context.Context) (int, error) {
	n, err := c.rdb.ZCard(ctx, c.key("members")).Result()
	return int(n), err
}

// ExpectedParticipantCount returns the configured room capacity.
func (c *Client) ExpectedParticipantCount() int {
	return c.opts.Capacity
}

// Participants returns the members in join order.
func (c *Client) Participants(ctx context.Context) ([]uuid.UUID, error) {
	raw, err := c.rdb.ZRange(ctx, c.key("members"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			c.logger.Warning(fmt.Sprintf("skipping malformed member %q", r))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) scopeKey(scope session.Scope) (string, error) {
	switch {
	case scope.Kind == session.ScopeRoom:
		return c.key("room"), nil
	case scope.Kind == session.ScopePlayer && scope.Participant != uuid.Nil:
		return c.playerKey(scope.Participant), nil
	}
	return "", session.ErrInvalidScope
}

// SetProperty writes key in scope. The local player's scope is always
// writable; other scopes need the authority lease.
func (c *Client) SetProperty(ctx context.Context, scope session.Scope, key string, value session.Value) error {
	hash, err := c.writableKey(ctx, scope)
	if err != nil {
		return err
	}
	if err := c.rdb.HSet(ctx, hash, key, session.EncodeValue(value)).Err(); err != nil {
		return err
	}
	return c.publishProperty(ctx, scope, key, value)
}

// SetPropertyOnce writes key in scope with HSETNX. When the key is already
// set the stored value is returned instead.
func (c *Client) SetPropertyOnce(ctx context.Context, scope session.Scope, key string, value session.Value) (session.Value, bool, error) {
	hash, err := c.writableKey(ctx, scope)
	if err != nil {
		return session.Value{}, false, err
	}
	written, err := c.rdb.HSetNX(ctx, hash, key, session.EncodeValue(value)).Result()
	if err != nil {
		return session.Value{}, false, err
	}
	if !written {
		current, ok, err := c.Property(ctx, scope, key)
		if err != nil {
			return session.Value{}, false, err
		}
		if !ok {
			return session.Value{}, false, fmt.Errorf("%w: %s vanished after a lost write", session.ErrMalformed, key)
		}
		return current, false, nil
	}
	return value, true, c.publishProperty(ctx, scope, key, value)
}

// writableKey checks write permission for scope. Scopes other than the local
// player's need the lease, confirmed against Redis so a lease that expired
// since the last renewal tick is not trusted.
func (c *Client) writableKey(ctx context.Context, scope session.Scope) (string, error) {
	if err := c.ensureJoined(); err != nil {
		return "", err
	}
	hash, err := c.scopeKey(scope)
	if err != nil {
		return "", err
	}
	if scope.Owned(c.id) {
		return hash, nil
	}
	if !c.IsAuthority() {
		return "", session.ErrNotPermitted
	}
	holder, err := c.leaseHolder(ctx)
	if err != nil {
		return "", err
	}
	if holder != c.id {
		c.mu.Lock()
		c.holding = false
		c.mu.Unlock()
		c.observeAuthority(holder)
		return "", session.ErrNotPermitted
	}
	return hash, nil
}

func (c *Client) publishProperty(ctx context.Context, scope session.Scope, key string, value session.Value) error {
	return c.publish(ctx, session.Event{
		Kind:     session.EventProperty,
		Property: session.PropertyChange{Scope: scope, Key: key, Value: value},
	})
}

// Property reads key in scope.
func (c *Client) Property(ctx context.Context, scope session.Scope, key string) (session.Value, bool, error) {
	hash, err := c.scopeKey(scope)
	if err != nil {
		return session.Value{}, false, err
	}
	raw, err := c.rdb.HGet(ctx, hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Value{}, false, nil
	}
	if err != nil {
		return session.Value{}, false, err
	}
	v, err := session.DecodeValue(raw)
	if err != nil {
		return session.Value{}, false, err
	}
	return v, true, nil
}

// Properties returns every property in scope.
func (c *Client) Properties(ctx context.Context, scope session.Scope) (map[string]session.Value, error) {
	hash, err := c.scopeKey(scope)
	if err != nil {
		return nil, err
	}
	raw, err := c.rdb.HGetAll(ctx, hash).Result()
	if err != nil {
		return nil, err
	}
	props := make(map[string]session.Value, len(raw))
	for k, r := range raw {
		v, err := session.DecodeValue([]byte(r))
		if err != nil {
			c.logger.Warning(fmt.Sprintf("skipping malformed property %q: %s", k, err))
			continue
		}
		props[k] = v
	}
	return props, nil
}

// SendRequest publishes msg addressed to the current lease holder.
func (c *Client) SendRequest(ctx context.Context, msg session.Message) error {
	if err := c.ensureJoined(); err != nil {
		return err
	}
	authority, ok := c.Authority()
	if !ok {
		holder, err := c.leaseHolder(ctx)
		if err != nil {
			return err
		}
		if holder == uuid.Nil {
			return session.ErrNoAuthority
		}
		authority = holder
	}
	msg.From = c.id
	return c.publish(ctx, session.Event{Kind: session.EventMessage, To: authority, Message: msg})
}

// Broadcast publishes msg to every member, this one included.
func (c *Client) Broadcast(ctx context.Context, msg session.Message) error {
	if err := c.ensureJoined(); err != nil {
		return err
	}
	msg.From = c.id
	return c.publish(ctx, session.Event{Kind: session.EventMessage, Message: msg})
}

// Subscribe opens a mailbox receiving every event addressed to this client.
func (c *Client) Subscribe(context.Context) (*session.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return nil, ErrNotJoined
	}

	var s *session.Subscription
	s = session.NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, s)
	})
	c.subs[s] = struct{}{}
	return s, nil
}

// InstantiateShared spawns an object visible to every member.
func (c *Client) InstantiateShared(ctx context.Context, kind string, pos session.Vec3) (uuid.UUID, error) {
	if !c.IsAuthority() {
		return uuid.Nil, session.ErrNotAuthority
	}
	obj := session.SharedObject{ID: uuid.New(), Kind: kind, Position: pos}

	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, c.key("objects"), obj.ID.String(), session.EncodeObject(obj))
		p.RPush(ctx, c.key("object_order"), obj.ID.String())
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return obj.ID, c.publish(ctx, session.Event{Kind: session.EventObject, Object: obj})
}

// DestroyShared removes an object spawned with InstantiateShared.
func (c *Client) DestroyShared(ctx context.Context, id uuid.UUID) error {
	if !c.IsAuthority() {
		return session.ErrNotAuthority
	}
	raw, err := c.rdb.HGet(ctx, c.key("objects"), id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.ErrUnknownObj
	}
	if err != nil {
		return err
	}
	obj, err := session.DecodeObject(raw)
	if err != nil {
		return err
	}

	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, c.key("objects"), id.String())
		p.LRem(ctx, c.key("object_order"), 0, id.String())
		return nil
	})
	if err != nil {
		return err
	}
	obj.Destroyed = true
	return c.publish(ctx, session.Event{Kind: session.EventObject, Object: obj})
}

// Objects lists live shared objects in spawn order.
func (c *Client) Objects(ctx context.Context) ([]session.SharedObject, error) {
	order, err := c.rdb.LRange(ctx, c.key("object_order"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return []session.SharedObject{}, nil
	}
	raw, err := c.rdb.HMGet(ctx, c.key("objects"), order...).Result()
	if err != nil {
		return nil, err
	}

	objs := make([]session.SharedObject, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			continue
		}
		obj, err := session.DecodeObject([]byte(s))
		if err != nil {
			c.logger.Warning(fmt.Sprintf("skipping malformed object: %s", err))
			continue
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// Leave removes the participant from the room, releases the authority lease
// if held and closes every local subscription.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return nil
	}
	c.joined = false
	holding := c.holding
	c.holding = false
	ps := c.pubsub
	c.pubsub = nil
	subs := c.subs
	c.subs = make(map[*session.Subscription]struct{})
	c.mu.Unlock()

	for s := range subs {
		s.Shutdown()
	}

	var errs []error
	if holding {
		if _, err := c.lease.UnlockContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("releasing authority lease: %w", err))
		}
	}
	if err := c.rdb.ZRem(ctx, c.key("members"), c.id.String()).Err(); err != nil {
		errs = append(errs, err)
	}
	if err := c.rdb.Del(ctx, c.playerKey(c.id)).Err(); err != nil {
		errs = append(errs, err)
	}
	if err := c.publish(ctx, session.Event{Kind: session.EventMembership, Participant: c.id, Joined: false}); err != nil {
		errs = append(errs, err)
	}
	if ps != nil {
		if err := ps.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
