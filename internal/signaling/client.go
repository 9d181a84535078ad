package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/util"
)

var _ store.Store = (*Client)(nil)

// Client is a store.Store backed by a signaling server.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Message
	subs    map[string]*clientSub
	err     error // set once the connection is gone
	done    chan struct{}
}

// clientSub delivers one subscription's messages in order on its own goroutine.
type clientSub struct {
	box  *util.Mailbox[Message]
	once sync.Once
}

func newClientSub(fn func(Message)) *clientSub {
	s := &clientSub{box: util.NewMailbox[Message]()}
	go func() {
		for {
			msg, ok := s.box.Pop(context.Background())
			if !ok {
				return
			}
			fn(msg)
		}
	}()
	return s
}

func (s *clientSub) stop() {
	s.once.Do(s.box.Close)
}

// Dial connects to a signaling server. The URL carries the PIN as a query
// parameter, e.g.:
//
//	wss://example.devtunnels.ms/ws?pin=1234
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	ws, err := connect(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		ws:      ws,
		pending: make(map[string]chan Message),
		subs:    make(map[string]*clientSub),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close drops the connection and every subscription.
func (c *Client) Close() error {
	err := c.ws.Close()
	<-c.done
	return err
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	var err error
	for {
		var msg Message
		if err = c.ws.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Op {
		case OpResult:
			c.mu.Lock()
			ch := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		case OpSnapshot, OpEntry:
			c.mu.Lock()
			sub := c.subs[msg.Sub]
			c.mu.Unlock()
			if sub != nil {
				sub.box.Push(msg)
			}
		default:
			util.LogDebug("ignoring signaling message %q", msg.Op)
		}
	}

	c.mu.Lock()
	c.err = fmt.Errorf("%w: connection lost: %v", store.ErrClosed, err)
	subs := c.subs
	c.subs = make(map[string]*clientSub)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
	close(c.done)
}

// request sends msg and waits for its result.
func (c *Client) request(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.NewString()
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return Message{}, err
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return Message{}, err
	}

	select {
	case res := <-ch:
		return res, codeError(res.Error)
	case <-c.done:
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		return Message{}, err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *Client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", store.ErrClosed, err)
	}
	return nil
}

func (c *Client) Set(ctx context.Context, path string, fields store.Fields) error {
	_, err := c.request(ctx, Message{Op: OpSet, Path: path, Fields: fields})
	return err
}

func (c *Client) Update(ctx context.Context, path string, fields store.Fields) error {
	_, err := c.request(ctx, Message{Op: OpUpdate, Path: path, Fields: fields})
	return err
}

func (c *Client) Get(ctx context.Context, path string) (store.Snapshot, error) {
	res, err := c.request(ctx, Message{Op: OpGet, Path: path})
	if err != nil {
		return store.Snapshot{}, err
	}
	snap := res.snapshot()
	snap.Path = path
	return snap, nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.request(ctx, Message{Op: OpDelete, Path: path})
	return err
}

func (c *Client) Append(ctx context.Context, path, collection string, fields store.Fields) (string, error) {
	res, err := c.request(ctx, Message{Op: OpAppend, Path: path, Collection: collection, Fields: fields})
	if err != nil {
		return "", err
	}
	return res.EntryID, nil
}

func (c *Client) Watch(ctx context.Context, path string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	return c.subscribe(ctx, Message{Op: OpWatch, Path: path}, func(msg Message) {
		fn(msg.snapshot())
	})
}

func (c *Client) WatchAppends(ctx context.Context, path, collection string, fn func(store.Entry)) (store.Unsubscribe, error) {
	return c.subscribe(ctx, Message{Op: OpWatchAppends, Path: path, Collection: collection}, func(msg Message) {
		fn(msg.entry())
	})
}

// subscribe registers the handler before sending the request so no
// delivery racing the result is lost.
func (c *Client) subscribe(ctx context.Context, msg Message, fn func(Message)) (store.Unsubscribe, error) {
	id := uuid.NewString()
	sub := newClientSub(fn)

	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()

	drop := func() bool {
		c.mu.Lock()
		_, ok := c.subs[id]
		delete(c.subs, id)
		c.mu.Unlock()
		sub.stop()
		return ok
	}

	msg.Sub = id
	if _, err := c.request(ctx, msg); err != nil {
		drop()
		return nil, err
	}

	return func() {
		if drop() {
			if err := c.write(Message{Op: OpUnwatch, Sub: id}); err != nil {
				util.LogDebug("unwatch %s: %v", id, err)
			}
		}
	}, nil
}
