package aps

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stanstork/designauto/internal/models"
)

func (c *Client) da(path string) string {
	return c.daPath + path
}

func pageQuery(page string) string {
	if page == "" {
		return ""
	}
	return "?page=" + url.QueryEscape(page)
}

// EnginesPage returns one page of the engine listing.
func (c *Client) EnginesPage(ctx context.Context, page string) (models.Page, error) {
	var out models.Page
	err := c.do(ctx, http.MethodGet, c.da("/engines"+pageQuery(page)), nil, &out)
	return out, err
}

func (c *Client) AppBundlesPage(ctx context.Context, page string) (models.Page, error) {
	var out models.Page
	err := c.do(ctx, http.MethodGet, c.da("/appbundles"+pageQuery(page)), nil, &out)
	return out, err
}

func (c *Client) ActivitiesPage(ctx context.Context, page string) (models.Page, error) {
	var out models.Page
	err := c.do(ctx, http.MethodGet, c.da("/activities"+pageQuery(page)), nil, &out)
	return out, err
}

// ListAppBundles returns every app bundle id visible to the account.
func (c *Client) ListAppBundles(ctx context.Context) ([]string, error) {
	return CollectPages(ctx, c.AppBundlesPage)
}

// ListActivities returns every activity id visible to the account.
func (c *Client) ListActivities(ctx context.Context) ([]string, error) {
	return CollectPages(ctx, c.ActivitiesPage)
}

// CollectPages follows pagination tokens until the listing is exhausted.
func CollectPages(ctx context.Context, fetch func(context.Context, string) (models.Page, error)) ([]string, error) {
	var (
		all   []string
		token string
	)
	for {
		page, err := fetch(ctx, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if page.PaginationToken == "" {
			return all, nil
		}
		token = page.PaginationToken
	}
}

func (c *Client) CreateAppBundle(ctx context.Context, bundle models.AppBundle) (models.AppBundle, error) {
	var out models.AppBundle
	err := c.do(ctx, http.MethodPost, c.da("/appbundles"), bundle, &out)
	return out, err
}

func (c *Client) CreateAppBundleVersion(ctx context.Context, id string, bundle models.AppBundle) (models.AppBundle, error) {
	var out models.AppBundle
	err := c.do(ctx, http.MethodPost, c.da("/appbundles/"+url.PathEscape(id)+"/versions"), bundle, &out)
	return out, err
}

func (c *Client) CreateAppBundleAlias(ctx context.Context, id string, alias models.Alias) error {
	return c.do(ctx, http.MethodPost, c.da("/appbundles/"+url.PathEscape(id)+"/aliases"), alias, nil)
}

func (c *Client) ModifyAppBundleAlias(ctx context.Context, id, aliasID string, version int) error {
	path := c.da("/appbundles/" + url.PathEscape(id) + "/aliases/" + url.PathEscape(aliasID))
	return c.do(ctx, http.MethodPatch, path, models.Alias{Version: version}, nil)
}

func (c *Client) CreateActivity(ctx context.Context, activity models.Activity) (models.Activity, error) {
	var out models.Activity
	err := c.do(ctx, http.MethodPost, c.da("/activities"), activity, &out)
	return out, err
}

func (c *Client) CreateActivityAlias(ctx context.Context, id string, alias models.Alias) error {
	return c.do(ctx, http.MethodPost, c.da("/activities/"+url.PathEscape(id)+"/aliases"), alias, nil)
}

func (c *Client) CreateWorkItem(ctx context.Context, spec models.WorkItemSpec) (models.WorkItemStatus, error) {
	var out models.WorkItemStatus
	err := c.do(ctx, http.MethodPost, c.da("/workitems"), spec, &out)
	return out, err
}

func (c *Client) WorkItemStatus(ctx context.Context, id string) (models.WorkItemStatus, error) {
	var out models.WorkItemStatus
	err := c.do(ctx, http.MethodGet, c.da("/workitems/"+url.PathEscape(id)), nil, &out)
	return out, err
}

// DeleteAccount removes every app bundle and activity owned by the account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, c.da("/forgeapps/me"), nil, nil)
}
