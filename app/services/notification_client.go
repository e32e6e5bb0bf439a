package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/utils"
	"github.com/google/uuid"
)

const (
	notificationVendor      = "bizppurio"
	notificationTokenPath   = "/v1/token"
	notificationMessagePath = "/v3/message"
	notificationTokenKey    = "bizppurio:token"

	placeholderOrder   = "#{주문번호}"
	placeholderProduct = "#{옵션번호}"
	placeholderQRLink  = "#{qr링크}"
)

// ActivationMessage carries what the customer needs to install a provisioned eSIM
type ActivationMessage struct {
	Phone          string
	OrderReference string
	ProductName    string
	Day            int
	Artifact       string
	TransID        string
}

// NotificationResult reports a send; Skipped is set when there was nothing to deliver
type NotificationResult struct {
	Skipped    bool
	Reason     string
	RefKey     string
	MessageKey string
}

// NotificationClient delivers activation messages to customers
type NotificationClient interface {
	SendActivation(ctx context.Context, msg ActivationMessage) (*NotificationResult, error)
}

// NotificationClientImpl implements NotificationClient over the alimtalk messaging API
type NotificationClientImpl struct {
	cfg    *config.NotificationConfig
	domain string
	cache  TokenCache
	client *http.Client
}

func NewNotificationClient(cfg *config.NotificationConfig, domain string, cache TokenCache) *NotificationClientImpl {
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &NotificationClientImpl{
		cfg:    cfg,
		domain: domain,
		cache:  cache,
		client: newHTTPClient(cfg.Timeout),
	}
}

type notificationTokenResponse struct {
	AccessToken string `json:"accesstoken"`
	Type        string `json:"type"`
	Expired     string `json:"expired"`
}

type notificationContent struct {
	At struct {
		SenderKey    string `json:"senderkey"`
		TemplateCode string `json:"templatecode"`
		Message      string `json:"message"`
	} `json:"at"`
}

type notificationMessageRequest struct {
	Account string              `json:"account"`
	RefKey  string              `json:"refkey"`
	Type    string              `json:"type"`
	From    string              `json:"from"`
	To      string              `json:"to"`
	Content notificationContent `json:"content"`
}

type notificationMessageResponse struct {
	Code        vendorCode `json:"code"`
	Description string     `json:"description"`
	RefKey      string     `json:"refkey"`
	MessageKey  string     `json:"messagekey"`
}

// token returns the cached bearer token or requests a new one
func (c *NotificationClientImpl) token(ctx context.Context) (string, error) {
	if tok, ok, err := c.cache.Get(ctx, notificationTokenKey); err != nil {
		log.Printf("notification: token cache read failed: %v", err)
	} else if ok {
		return tok, nil
	}

	var resp notificationTokenResponse
	err := doJSON(ctx, c.client, vendorRequest{
		vendor:  notificationVendor,
		op:      "token",
		method:  http.MethodPost,
		url:     strings.TrimRight(c.cfg.BaseURL, "/") + notificationTokenPath,
		headers: map[string]string{"Authorization": "Basic " + c.cfg.BasicAuth},
		body:    []byte("{}"),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", newUpstreamError(notificationVendor, "token", 0, nil, fmt.Errorf("empty access token"))
	}

	ttl := c.cfg.TokenTTL
	if ttl <= 0 {
		ttl = utils.NotificationTokenTTL
	}
	if err := c.cache.Set(ctx, notificationTokenKey, resp.AccessToken, ttl); err != nil {
		log.Printf("notification: token cache write failed: %v", err)
	}
	return resp.AccessToken, nil
}

// RenderActivationText fills the message template for msg
func (c *NotificationClientImpl) RenderActivationText(msg ActivationMessage) string {
	order := msg.OrderReference
	if order == "" {
		order = utils.ArtifactUnavailable
	}
	return strings.NewReplacer(
		placeholderOrder, order,
		placeholderProduct, msg.ProductName+" "+strconv.Itoa(msg.Day)+"일",
		placeholderQRLink, c.qrLink(msg),
	).Replace(c.cfg.Template)
}

// qrLink points at the QR detail page when the redemption transaction is known, else carries the artifact itself
func (c *NotificationClientImpl) qrLink(msg ActivationMessage) string {
	if msg.TransID == "" || c.domain == "" {
		return msg.Artifact
	}
	return "https://" + c.domain + "/esim/qr-detail?transId=" + url.QueryEscape(msg.TransID)
}

// SendActivation sends the activation message. A missing artifact is skipped, not an error.
// A rejected token is dropped and the send retried once with a fresh one.
func (c *NotificationClientImpl) SendActivation(ctx context.Context, msg ActivationMessage) (*NotificationResult, error) {
	if !utils.HasArtifact(msg.Artifact) {
		return &NotificationResult{Skipped: true, Reason: "no activation artifact"}, nil
	}
	if !c.cfg.Enabled {
		return &NotificationResult{Skipped: true, Reason: "notifications disabled"}, nil
	}

	req := notificationMessageRequest{
		Account: c.cfg.Account,
		RefKey:  strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:    "at",
		From:    c.cfg.From,
		To:      utils.LocalPhone(msg.Phone),
	}
	req.Content.At.SenderKey = c.cfg.SenderKey
	req.Content.At.TemplateCode = c.cfg.TemplateCode
	req.Content.At.Message = c.RenderActivationText(msg)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	resp, err := c.send(ctx, body)
	if IsUnauthorized(err) {
		if derr := c.cache.Delete(ctx, notificationTokenKey); derr != nil {
			log.Printf("notification: token cache delete failed: %v", derr)
		}
		resp, err = c.send(ctx, body)
	}
	if err != nil {
		return nil, err
	}
	if resp.Code != "" && resp.Code != "1000" {
		return nil, newUpstreamError(notificationVendor, "message", 0, nil,
			fmt.Errorf("result code %s: %s", resp.Code, resp.Description))
	}

	return &NotificationResult{RefKey: req.RefKey, MessageKey: resp.MessageKey}, nil
}

func (c *NotificationClientImpl) send(ctx context.Context, body []byte) (*notificationMessageResponse, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	var resp notificationMessageResponse
	err = doJSON(ctx, c.client, vendorRequest{
		vendor:  notificationVendor,
		op:      "message",
		method:  http.MethodPost,
		url:     strings.TrimRight(c.cfg.BaseURL, "/") + notificationMessagePath,
		headers: map[string]string{"Authorization": "Bearer " + tok},
		body:    body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
