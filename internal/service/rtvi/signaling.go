package rtvi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ConnectResponse is returned by POST {baseUrl}connect.
type ConnectResponse struct {
	WSURL   string `json:"ws_url,omitempty"`
	RoomURL string `json:"room_url,omitempty"`
	Token   string `json:"token,omitempty"`
}

// SessionDescription is the SDP exchange body of POST {baseUrl}api/offer.
type SessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
	PCID string `json:"pc_id,omitempty"`
}

// Signaler talks to the bot runner's HTTP endpoints.
type Signaler struct {
	baseURL string
	client  *http.Client
}

// NewSignaler returns a signaler rooted at baseURL. A nil client falls back
// to http.DefaultClient.
func NewSignaler(baseURL string, client *http.Client) *Signaler {
	if client == nil {
		client = http.DefaultClient
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Signaler{baseURL: baseURL, client: client}
}

// Endpoint resolves path against the base URL.
func (s *Signaler) Endpoint(path string) (string, error) {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parsing base url")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", errors.Wrap(err, "parsing endpoint path")
	}
	return base.ResolveReference(ref).String(), nil
}

// Connect asks the runner to start a bot and returns where to reach it.
func (s *Signaler) Connect(ctx context.Context) (ConnectResponse, error) {
	var resp ConnectResponse
	if err := s.postJSON(ctx, "connect", struct{}{}, &resp); err != nil {
		return ConnectResponse{}, err
	}
	if resp.WSURL == "" && resp.RoomURL == "" {
		return ConnectResponse{}, errors.New("connect response has no session url")
	}
	return resp, nil
}

// Offer posts a local SDP offer and returns the bot's answer.
func (s *Signaler) Offer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	var answer SessionDescription
	if err := s.postJSON(ctx, "api/offer", offer, &answer); err != nil {
		return SessionDescription{}, err
	}
	if answer.SDP == "" {
		return SessionDescription{}, errors.New("offer response has no sdp")
	}
	return answer, nil
}

func (s *Signaler) postJSON(ctx context.Context, path string, body, out any) error {
	endpoint, err := s.Endpoint(path)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("POST %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding response from %s", endpoint)
	}
	return nil
}
