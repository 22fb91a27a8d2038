package ebird

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

const (
	componentName = "ebird"
	maxBack       = 30
)

// Client provides methods for interacting with the eBird API
type Client struct {
	config      Config
	httpClient  *http.Client
	cache       *cache.Cache
	limiter     *rate.Limiter
	log         logger.Logger
	firstCallMu sync.Once

	metrics struct {
		apiCalls      int64
		cacheHits     int64
		cacheMisses   int64
		apiErrors     int64
		totalDuration time.Duration
		mu            sync.RWMutex
	}
}

// NewClient creates a new eBird API client
func NewClient(config Config, log logger.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("eBird API key is required").
			Category(errors.CategoryConfiguration).
			Component(componentName).
			Build()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache:   cache.New(config.CacheTTL, config.CacheTTL*2),
		limiter: rate.NewLimiter(rate.Every(time.Duration(config.RateLimitMS)*time.Millisecond), 1),
		log:     log.Module(componentName),
	}

	client.log.Debug("eBird client initialized",
		logger.String("base_url", config.BaseURL),
		logger.Duration("cache_ttl", config.CacheTTL),
		logger.Int("rate_limit_ms", config.RateLimitMS),
		logger.Bool("debug", config.Debug))

	return client, nil
}

// Close releases cached data
func (c *Client) Close() {
	c.cache.Flush()
	c.log.Debug("Closing eBird client")
}

// RecentObservations fetches recent observations of one species in a region.
// A species code may also be a lumped taxon (slash, spuh or hybrid code).
// Results are never cached: every merge must see the current state of eBird.
func (c *Client) RecentObservations(ctx context.Context, regionCode, speciesCode string, q ObservationQuery) ([]Observation, error) {
	if regionCode == "" || speciesCode == "" {
		return nil, errors.Newf("region and species code are required").
			Category(errors.CategoryValidation).
			Context("region_code", regionCode).
			Context("species_code", speciesCode).
			Component(componentName).
			Build()
	}
	if q.Back < 0 || q.Back > maxBack {
		return nil, errors.Newf("back must be between 1 and %d days, got %d", maxBack, q.Back).
			Category(errors.CategoryValidation).
			Component(componentName).
			Build()
	}

	params := url.Values{}
	params.Set("fmt", "json")
	if q.Back > 0 {
		params.Set("back", strconv.Itoa(q.Back))
	}
	if q.IncludeProvisional {
		params.Set("includeProvisional", "true")
	}
	if q.HotspotsOnly {
		params.Set("hotspot", "true")
	}

	reqURL := fmt.Sprintf("%s/data/obs/%s/recent/%s?%s",
		c.config.BaseURL, url.PathEscape(regionCode), url.PathEscape(speciesCode), params.Encode())

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var observations []Observation
	if err := c.doRequestWithRetry(reqCtx, http.MethodGet, reqURL, &observations); err != nil {
		return nil, err
	}

	c.log.Info("Pulled eBird observations",
		logger.String("region_code", regionCode),
		logger.String("species_code", speciesCode),
		logger.Int("observations", len(observations)))

	return observations, nil
}

// GetTaxonomy retrieves the complete eBird taxonomy, optionally filtered by locale
func (c *Client) GetTaxonomy(ctx context.Context, locale string) ([]TaxonomyEntry, error) {
	cacheKey := fmt.Sprintf("taxonomy:%s", locale)

	if cached, found := c.cache.Get(cacheKey); found {
		if taxonomy, ok := cached.([]TaxonomyEntry); ok {
			c.countCache(true)
			c.log.Debug("eBird taxonomy cache hit",
				logger.String("cache_key", cacheKey),
				logger.Int("entries", len(taxonomy)))
			return taxonomy, nil
		}
	}
	c.countCache(false)

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	// eBird API defaults to CSV, we need to specify fmt=json
	reqURL := fmt.Sprintf("%s/ref/taxonomy/ebird?fmt=json", c.config.BaseURL)
	if locale != "" {
		reqURL = fmt.Sprintf("%s&locale=%s", reqURL, url.QueryEscape(locale))
	}

	var taxonomy []TaxonomyEntry
	if err := c.doRequestWithRetry(reqCtx, http.MethodGet, reqURL, &taxonomy); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, taxonomy, cache.DefaultExpiration)

	c.log.Debug("eBird taxonomy cached",
		logger.String("cache_key", cacheKey),
		logger.Int("entries", len(taxonomy)))

	return taxonomy, nil
}

// ValidateSpeciesCodes splits codes into those present in the eBird taxonomy and those that are not.
// It fails only when the taxonomy itself cannot be fetched.
func (c *Client) ValidateSpeciesCodes(ctx context.Context, codes []string) (known, unknown []string, err error) {
	taxonomy, err := c.GetTaxonomy(ctx, "")
	if err != nil {
		return nil, nil, err
	}

	index := make(map[string]struct{}, len(taxonomy))
	for i := range taxonomy {
		index[taxonomy[i].SpeciesCode] = struct{}{}
	}

	for _, code := range codes {
		if _, ok := index[code]; ok {
			known = append(known, code)
			continue
		}
		unknown = append(unknown, code)
		c.log.Warn("Species code not found in eBird taxonomy",
			logger.String("species_code", code))
	}
	return known, unknown, nil
}

func (c *Client) countCache(hit bool) {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()
	if hit {
		c.metrics.cacheHits++
	} else {
		c.metrics.cacheMisses++
	}
}

func (c *Client) countError() {
	c.metrics.mu.Lock()
	c.metrics.apiErrors++
	c.metrics.mu.Unlock()
}

// doRequest performs an HTTP request with rate limiting and auth
func (c *Client) doRequest(ctx context.Context, method, reqURL string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Newf("rate limiter wait aborted: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", reqURL).
			Component(componentName).
			Build()
	}

	start := time.Now()

	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, http.NoBody)
	if err != nil {
		c.countError()
		return errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", reqURL).
			Component(componentName).
			Build()
	}

	req.Header.Set("X-eBirdApiToken", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	if c.config.Debug {
		c.log.Debug("eBird API request",
			logger.String("method", method),
			logger.String("url", reqURL))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countError()
		c.log.Error("eBird API request failed",
			logger.Error(err),
			logger.String("method", method),
			logger.String("url", reqURL))
		return errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", reqURL).
			Component(componentName).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countError()
		return errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", reqURL).
			Context("status_code", resp.StatusCode).
			Component(componentName).
			Build()
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.countError()
		return c.apiError(resp.StatusCode, bodyBytes, reqURL)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		c.countError()
		c.log.Error("eBird API returned non-JSON response",
			logger.Int("status_code", resp.StatusCode),
			logger.String("content_type", contentType),
			logger.String("url", reqURL),
			logger.String("response_preview", preview(bodyBytes)))
		return errors.Newf("eBird API returned non-JSON response (Content-Type: %s)", contentType).
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Context("content_type", contentType).
			Context("url", reqURL).
			Component(componentName).
			Build()
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			c.countError()
			c.log.Error("Failed to parse eBird API response",
				logger.Error(err),
				logger.String("url", reqURL),
				logger.Int("response_size", len(bodyBytes)),
				logger.String("response_preview", preview(bodyBytes)))
			return errors.Newf("failed to parse response: %w", err).
				Category(errors.CategoryFileParsing).
				Context("url", reqURL).
				Context("response_size", len(bodyBytes)).
				Component(componentName).
				Build()
		}
	}

	duration := time.Since(start)

	c.firstCallMu.Do(func() {
		c.log.Info("eBird API authentication successful",
			logger.String("first_successful_request", reqURL))
	})
	c.log.Debug("eBird API request successful",
		logger.String("url", reqURL),
		logger.Int("response_size", len(bodyBytes)),
		logger.Duration("duration", duration))

	c.metrics.mu.Lock()
	c.metrics.totalDuration += duration
	c.metrics.mu.Unlock()

	return nil
}

// apiError converts an error response into an enhanced error
func (c *Client) apiError(statusCode int, body []byte, reqURL string) error {
	var apiErr Error
	detail := string(body)
	title := ""
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Detail != "" {
		detail = apiErr.Detail
		title = apiErr.Title
	}

	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		c.log.Error("eBird API authentication failed",
			logger.Int("status_code", statusCode),
			logger.String("error_title", title),
			logger.String("url", reqURL),
			logger.String("message", "Check your eBird API key in the configuration"))
	} else {
		c.log.Warn("eBird API error response",
			logger.Int("status_code", statusCode),
			logger.String("error_title", title),
			logger.String("error_detail", detail),
			logger.String("url", reqURL))
	}

	return errors.Newf("eBird API error (status %d): %s", statusCode, detail).
		Category(getErrorCategory(statusCode)).
		Context("status_code", statusCode).
		Context("error_title", title).
		Context("url", reqURL).
		Component(componentName).
		Build()
}

// doRequestWithRetry wraps doRequest with retry logic for transient failures
func (c *Client) doRequestWithRetry(ctx context.Context, method, reqURL string, result any) error {
	const maxRetries = 3
	var lastErr error

	for attempt := range maxRetries {
		err := c.doRequest(ctx, method, reqURL, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}

		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}

		if attempt < maxRetries-1 {
			delay := time.Duration(attempt+1) * 500 * time.Millisecond
			c.log.Warn("eBird API request failed, retrying",
				logger.Int("attempt", attempt+1),
				logger.Int("max_retries", maxRetries),
				logger.Duration("delay", delay),
				logger.String("url", reqURL),
				logger.Error(err))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return lastErr
}

// isRetryable reports whether an error is worth another attempt
func isRetryable(err error) bool {
	var enhancedErr *errors.EnhancedError
	if !errors.As(err, &enhancedErr) {
		return true
	}
	switch enhancedErr.Category {
	case errors.CategoryConfiguration, errors.CategoryNotFound, errors.CategoryValidation, errors.CategoryFileParsing:
		return false
	}
	if statusCode, ok := enhancedErr.Context["status_code"].(int); ok {
		// Client errors won't change on retry; 429 is left to the rate limiter
		if statusCode >= 400 && statusCode < 500 {
			return false
		}
	}
	return true
}

// Metrics represents eBird client performance metrics
type Metrics struct {
	APICalls      int64         `json:"api_calls"`
	CacheHits     int64         `json:"cache_hits"`
	CacheMisses   int64         `json:"cache_misses"`
	APIErrors     int64         `json:"api_errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	m := Metrics{
		APICalls:      c.metrics.apiCalls,
		CacheHits:     c.metrics.cacheHits,
		CacheMisses:   c.metrics.cacheMisses,
		APIErrors:     c.metrics.apiErrors,
		TotalDuration: c.metrics.totalDuration,
	}
	if m.APICalls > 0 {
		m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.APICalls)
	}
	return m
}

// getErrorCategory determines the appropriate error category based on HTTP status code
func getErrorCategory(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CategoryConfiguration
	case http.StatusTooManyRequests:
		return errors.CategoryLimit
	case http.StatusNotFound:
		return errors.CategoryNotFound
	case http.StatusBadRequest:
		return errors.CategoryValidation
	default:
		return errors.CategoryNetwork
	}
}

// preview returns at most the first 500 bytes of a body for logging
func preview(body []byte) string {
	const limit = 500
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
