package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type identity struct {
	DisplayName string `json:"displayName"`
}

type meResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
	UPN         string `json:"userPrincipalName"` // personal accounts often leave mail empty
}

type driveResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType"`
	Owner     *struct {
		User identity `json:"user"`
	} `json:"owner"`
	Quota *struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
	} `json:"quota"`
}

// getJSON issues a GET and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, apiPath, what string, v any) error {
	resp, err := c.Do(ctx, http.MethodGet, apiPath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	return nil
}

// Me returns the signed-in user. Email falls back to the user principal
// name.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var mr meResponse
	if err := c.getJSON(ctx, "/me", "user", &mr); err != nil {
		return nil, err
	}

	u := &User{ID: mr.ID, DisplayName: mr.DisplayName, Email: mr.Mail}
	if u.Email == "" {
		u.Email = mr.UPN
	}

	c.logger.Debug("signed-in user", slog.String("id", u.ID))

	return u, nil
}

// DefaultDrive returns the signed-in user's default drive.
func (c *Client) DefaultDrive(ctx context.Context) (*Drive, error) {
	return c.drive(ctx, "/me/drive")
}

// Drive returns the drive with the given ID. Quota is -1 when the service
// omits it.
func (c *Client) Drive(ctx context.Context, driveID string) (*Drive, error) {
	return c.drive(ctx, "/drives/"+url.PathEscape(driveID))
}

func (c *Client) drive(ctx context.Context, apiPath string) (*Drive, error) {
	var dr driveResponse
	if err := c.getJSON(ctx, apiPath, "drive", &dr); err != nil {
		return nil, err
	}

	d := &Drive{
		ID:         strings.ToLower(dr.ID),
		Name:       dr.Name,
		DriveType:  dr.DriveType,
		QuotaUsed:  -1,
		QuotaTotal: -1,
	}

	if dr.Owner != nil {
		d.OwnerName = dr.Owner.User.DisplayName
	}

	if dr.Quota != nil {
		d.QuotaUsed, d.QuotaTotal = dr.Quota.Used, dr.Quota.Total
	}

	c.logger.Debug("drive", slog.String("id", d.ID), slog.String("type", d.DriveType))

	return d, nil
}
