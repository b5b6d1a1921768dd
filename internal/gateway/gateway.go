// Package gateway is a thin typed wrapper over the remote service's
// HTTP/JSON API. It owns the error mapping at the collaborator boundary:
// 404 becomes errs.ErrNotFound, 409 errs.ErrConflict, 400 a
// *errs.ValidationError, and every transport failure or unexpected status
// collapses to *errs.NetworkError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/models"
)

// Client talks to one remote service instance.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New creates a gateway client for the given base URL. A nil http.Client
// gets a default with a conservative timeout; the engine must never hang on
// a dead link.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		hc:      hc,
	}
}

// ResolveGroup fetches a group by code.
func (c *Client) ResolveGroup(ctx context.Context, code string) (*models.Group, error) {
	endpoint := c.baseURL + "/groups?code=" + url.QueryEscape(models.NormalizeCode(code))

	resp, err := c.get(ctx, "resolve group", endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		group := &models.Group{}
		if err := json.NewDecoder(resp.Body).Decode(group); err != nil {
			return nil, errs.Network("resolve group", err)
		}
		return group, nil
	case http.StatusNotFound:
		return nil, errs.ErrNotFound
	default:
		return nil, unexpectedStatus("resolve group", resp)
	}
}

// CreateGroup registers a new group code on the server.
func (c *Client) CreateGroup(ctx context.Context, code, name string) (*models.Group, error) {
	body := map[string]string{"code": code, "name": name}

	resp, err := c.send(ctx, "create group", http.MethodPost, c.baseURL+"/groups", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		group := &models.Group{}
		if err := json.NewDecoder(resp.Body).Decode(group); err != nil {
			return nil, errs.Network("create group", err)
		}
		return group, nil
	case http.StatusConflict:
		return nil, errs.ErrConflict
	case http.StatusBadRequest:
		return nil, errs.Validation("group", serverMessage(resp))
	default:
		return nil, unexpectedStatus("create group", resp)
	}
}

// ListPoints fetches the complete canonical point set for a group.
func (c *Client) ListPoints(ctx context.Context, groupCode string) ([]models.Point, error) {
	endpoint := c.baseURL + "/points?groupCode=" + url.QueryEscape(models.NormalizeCode(groupCode))

	resp, err := c.get(ctx, "list points", endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			Points []models.Point `json:"points"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, errs.Network("list points", err)
		}
		return payload.Points, nil
	case http.StatusNotFound:
		return nil, errs.ErrNotFound
	default:
		return nil, unexpectedStatus("list points", resp)
	}
}

// UpsertPoint creates or updates a point by ID. Idempotent: repeating the
// call with the same payload leaves the remote store unchanged.
func (c *Client) UpsertPoint(ctx context.Context, point *models.Point) (*models.Point, error) {
	return c.sendPoint(ctx, "upsert point", http.MethodPost, point, http.StatusCreated)
}

// UpdatePoint overwrites a point's attributes on the server.
func (c *Client) UpdatePoint(ctx context.Context, point *models.Point) (*models.Point, error) {
	return c.sendPoint(ctx, "update point", http.MethodPut, point, http.StatusOK)
}

func (c *Client) sendPoint(ctx context.Context, op, method string, point *models.Point, wantStatus int) (*models.Point, error) {
	resp, err := c.send(ctx, op, method, c.baseURL+"/points", point)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case wantStatus:
		saved := &models.Point{}
		if err := json.NewDecoder(resp.Body).Decode(saved); err != nil {
			return nil, errs.Network(op, err)
		}
		return saved, nil
	case http.StatusBadRequest:
		return nil, errs.Validation("point", serverMessage(resp))
	default:
		return nil, unexpectedStatus(op, resp)
	}
}

// DeletePoint removes a point on the server.
func (c *Client) DeletePoint(ctx context.Context, id string) error {
	endpoint := c.baseURL + "/points?id=" + url.QueryEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return errs.Network("delete point", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errs.Network("delete point", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("delete point", resp)
	}
	return nil
}

// BulkImport uploads a batch of points. A single row's failure does not
// abort the batch; the result partitions the input by outcome.
func (c *Client) BulkImport(ctx context.Context, points []models.Point) (*models.BulkImportResult, error) {
	body := map[string][]models.Point{"points": points}

	resp, err := c.send(ctx, "bulk import", http.MethodPost, c.baseURL+"/points/bulk", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		result := &models.BulkImportResult{}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return nil, errs.Network("bulk import", err)
		}
		return result, nil
	case http.StatusBadRequest:
		return nil, errs.Validation("points", serverMessage(resp))
	default:
		return nil, unexpectedStatus("bulk import", resp)
	}
}

func (c *Client) get(ctx context.Context, op, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.Network(op, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errs.Network(op, err)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, op, method, endpoint string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errs.Network(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Network(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errs.Network(op, err)
	}
	return resp, nil
}

func unexpectedStatus(op string, resp *http.Response) error {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return errs.Network(op, fmt.Errorf("unexpected status %d", resp.StatusCode))
}

func serverMessage(resp *http.Response) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return "rejected by server"
}
