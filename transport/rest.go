////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package transport provides the concrete collaborators of the chat engine:
// the fetch-backed REST API client and the push socket. The engine only sees
// them through the chat.FetchClient and chat.PushTransport interfaces.
package transport

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/valyala/fasthttp"

	"gitlab.com/elixxir/messenger/chat"
)

const (
	messagesPath    = "/messages"
	sendMessagePath = "/new-send-message"

	defaultRequestTimeout = 10 * time.Second
)

// RESTParams configures a [RESTClient].
type RESTParams struct {
	// BaseURL is the server root, without a trailing slash.
	BaseURL string

	// VerifyToken and Challenge are the subscription query parameters the
	// message API expects on fetches.
	VerifyToken string
	Challenge   string

	// Timeout bounds each request. Zero takes the default.
	Timeout time.Duration
}

// RESTClient implements [chat.FetchClient] over HTTP.
type RESTClient struct {
	params RESTParams
	client *fasthttp.Client
}

// NewRESTClient builds a fetch client for the given server.
func NewRESTClient(params RESTParams) *RESTClient {
	if params.Timeout == 0 {
		params.Timeout = defaultRequestTimeout
	}
	return &RESTClient{
		params: params,
		client: &fasthttp.Client{},
	}
}

// FetchMessages retrieves the raw payloads for one peer, or all of them when
// peerID is empty.
func (rc *RESTClient) FetchMessages(peerID string) ([]chat.RawMessage, error) {
	uri := rc.params.BaseURL + messagesPath
	if peerID != "" {
		uri += "/" + url.PathEscape(peerID)
	}

	args := make(url.Values)
	args.Set("hub.mode", "subscribe")
	if rc.params.VerifyToken != "" {
		args.Set("hub.verification_token", rc.params.VerifyToken)
	}
	if rc.params.Challenge != "" {
		args.Set("challenge", rc.params.Challenge)
	}
	uri += "?" + args.Encode()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := rc.client.DoTimeout(req, resp, rc.params.Timeout); err != nil {
		return nil, errors.Wrap(err, "message fetch failed")
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, errors.Errorf(
			"message fetch returned status %d", resp.StatusCode())
	}

	var raws []chat.RawMessage
	if err := json.Unmarshal(resp.Body(), &raws); err != nil {
		return nil, errors.Wrap(err, "could not parse message fetch body")
	}

	jww.DEBUG.Printf("[REST] Fetched %d messages for %q", len(raws), peerID)
	return raws, nil
}

// PostMessage submits an outbound message over the fetch-backed API.
func (rc *RESTClient) PostMessage(raw chat.RawMessage) error {
	body, err := json.Marshal(struct {
		TempMessage chat.RawMessage `json:"tempMessage"`
	}{raw})
	if err != nil {
		return errors.Wrap(err, "could not encode outbound message")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rc.params.BaseURL + sendMessagePath)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err = rc.client.DoTimeout(req, resp, rc.params.Timeout); err != nil {
		return errors.Wrap(err, "message post failed")
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return errors.Errorf(
			"message post returned status %d", resp.StatusCode())
	}

	jww.DEBUG.Printf("[REST] Posted message %s", raw.ID)
	return nil
}
