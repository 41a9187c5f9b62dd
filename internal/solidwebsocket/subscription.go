// Package solidwebsocket is the opt-in change-notification client:
// it subscribes to a resource's activity stream and invalidates the
// hierarchy cache's record of that resource when an Update or Delete
// notification arrives. Subscription attempts run on the mount's
// internal/background executor and each connection's message handling
// runs on a goroutine of its own that stops with the executor, never
// on a FUSE worker goroutine.
package solidwebsocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/deiu/rdf2go"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// SubscriptionEndpoint is the Inrupt websocket notification gateway
// this mount subscribes through.
const SubscriptionEndpoint = "https://websocket.inrupt.com/"

const pingInterval = 50 * time.Second

const activityTypePredicate = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
const activityObjectPredicate = "https://www.w3.org/ns/activitystreams#object"
const activityUpdateType = "https://www.w3.org/ns/activitystreams#Update"
const activityDeleteType = "https://www.w3.org/ns/activitystreams#Delete"

// Invalidator is notified when a subscribed resource changed or was
// deleted, so it can drop any cached membership/content for it.
type Invalidator interface {
	InvalidateUpdated(resourceURI string)
	InvalidateDeleted(resourceURI string)
}

// Submitter schedules work on the mount's single background
// goroutine.
type Submitter interface {
	Submit(task func(context.Context))
}

// Client subscribes to resource change notifications, one websocket
// connection per subscribed resource.
type Client struct {
	httpClient  *http.Client
	executor    Submitter
	invalidator Invalidator
}

// NewClient builds a Client. httpClient may be nil to use
// http.DefaultClient.
func NewClient(httpClient *http.Client, executor Submitter, invalidator Invalidator) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, executor: executor, invalidator: invalidator}
}

// Subscribe is solidhierarchy.Subscriber's single method: it submits
// a best-effort subscription attempt for resourceURI to the
// background executor and returns immediately.
func (c *Client) Subscribe(ctx context.Context, resourceURI string) {
	c.executor.Submit(func(bgCtx context.Context) {
		if err := c.subscribe(bgCtx, resourceURI); err != nil {
			log.WithFields(log.Fields{"resource_url": resourceURI}).
				WithError(err).Debug("websocket subscription failed, continuing without notifications")
		}
	})
}

type subscriptionRequest struct {
	Topic string `json:"topic"`
}

type subscriptionResponse struct {
	Endpoint    string `json:"endpoint"`
	Subprotocol string `json:"subprotocol"`
}

func (c *Client) subscribe(ctx context.Context, resourceURI string) error {
	body, err := json.Marshal(subscriptionRequest{Topic: resourceURI})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, SubscriptionEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var sub subscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return err
	}

	dialer := websocket.Dialer{Subprotocols: []string{sub.Subprotocol}}
	conn, _, err := dialer.DialContext(ctx, sub.Endpoint, nil)
	if err != nil {
		return err
	}

	// Each connection listens on its own goroutine, bound to the
	// executor's context, so the executor stays free for further
	// subscriptions.
	go c.listen(ctx, conn, resourceURI)
	return nil
}

func (c *Client) listen(ctx context.Context, conn *websocket.Conn, resourceURI string) {
	defer conn.Close()

	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	messages := make(chan []byte, 1)
	go c.pump(conn, messages)

	for {
		select {
		case <-ctx.Done():
			return
		case <-pinger.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case payload, ok := <-messages:
			if !ok {
				return
			}
			c.handleNotification(resourceURI, payload)
		}
	}
}

func (c *Client) pump(conn *websocket.Conn, out chan<- []byte) {
	defer close(out)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		out <- payload
	}
}

func (c *Client) handleNotification(subscribedURI string, payload []byte) {
	graph := rdf2go.NewGraph(subscribedURI)
	if err := graph.Parse(bytes.NewReader(payload), "application/ld+json"); err != nil {
		log.WithFields(log.Fields{"resource_url": subscribedURI}).
			WithError(err).Debug("unparseable activity notification, ignoring")
		return
	}

	typeTriples := graph.All(nil, rdf2go.NewResource(activityTypePredicate), nil)
	objectTriples := graph.All(nil, rdf2go.NewResource(activityObjectPredicate), nil)

	affected := subscribedURI
	if len(objectTriples) > 0 {
		affected = objectTriples[0].Object.RawValue()
	}

	for _, triple := range typeTriples {
		switch triple.Object.RawValue() {
		case activityUpdateType, "Update":
			c.invalidator.InvalidateUpdated(affected)
		case activityDeleteType, "Delete":
			c.invalidator.InvalidateDeleted(affected)
		}
	}
}
