package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL          = "https://graph.microsoft.com/beta"
	DefaultAuthorityBaseURL = "https://login.microsoftonline.com"
	defaultScopeConstant    = "https://graph.microsoft.com/.default"

	tokenPathTemplateConstant       = "%s/%s/oauth2/v2.0/token"
	grantTypeFormKeyConstant        = "grant_type"
	clientCredentialsGrantConstant  = "client_credentials"
	clientIdentifierFormKeyConstant = "client_id"
	clientSecretFormKeyConstant     = "client_secret"
	scopeFormKeyConstant            = "scope"
	formContentTypeConstant         = "application/x-www-form-urlencoded"
	jsonContentTypeConstant         = "application/json"
	contentTypeHeaderNameConstant   = "Content-Type"
	authorizationHeaderNameConstant = "Authorization"
	retryAfterHeaderNameConstant    = "Retry-After"
	bearerSchemeTemplateConstant    = "Bearer %s"

	httpClientMissingMessageConstant    = "HTTP client not configured"
	notConnectedMessageConstant         = "graph client is not connected to a tenant"
	tenantIdentifierMissingMessage      = "tenant identifier must be provided"
	clientIdentifierMissingMessage      = "client identifier must be provided"
	clientSecretMissingMessageConstant  = "client secret must be provided"
	emptyAccessTokenMessageConstant     = "token endpoint returned an empty access token"
	tokenRequestErrorTemplateConstant   = "token request failed: %w"
	tokenDecodeErrorTemplateConstant    = "unable to decode token response: %w"
	requestBuildErrorTemplateConstant   = "unable to build request for %s: %w"
	responseReadErrorTemplateConstant   = "unable to read response from %s: %w"
	responseDecodeErrorTemplateConstant = "unable to decode response from %s: %w"
	requestBodyErrorTemplateConstant    = "unable to encode request body for %s: %w"

	connectedMessageConstant    = "Connected to tenant"
	disconnectedMessageConstant = "Disconnected from tenant"
	retryingMessageConstant     = "Retrying graph request"

	tenantLogFieldConstant     = "tenant"
	requestURLLogFieldConstant = "request_url"
	statusLogFieldConstant     = "status"

	retryMaxElapsedTimeConstant   = 2 * time.Minute
	retryInitialIntervalConstant  = 500 * time.Millisecond
	defaultRequestTimeoutConstant = 60 * time.Second
)

var (
	errHTTPClientMissing = errors.New(httpClientMissingMessageConstant)
	errNotConnected      = errors.New(notConnectedMessageConstant)
	errTenantMissing     = errors.New(tenantIdentifierMissingMessage)
	errClientIDMissing   = errors.New(clientIdentifierMissingMessage)
	errSecretMissing     = errors.New(clientSecretMissingMessageConstant)
	errEmptyAccessToken  = errors.New(emptyAccessTokenMessageConstant)
)

// HTTPDoer issues a single HTTP request.
type HTTPDoer interface {
	Do(request *http.Request) (*http.Response, error)
}

// TenantCredentials identifies an application registration within a tenant.
type TenantCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// ClientConfiguration adjusts endpoint locations, primarily for testing.
type ClientConfiguration struct {
	BaseURL          string
	AuthorityBaseURL string
	Scope            string
}

// Client is a Microsoft Graph session bound to at most one tenant at a time.
type Client struct {
	logger        *zap.Logger
	httpClient    HTTPDoer
	configuration ClientConfiguration
	accessToken   string
	tenantID      string
}

// NewClient constructs a Graph client with the provided collaborators.
func NewClient(logger *zap.Logger, httpClient HTTPDoer, configuration ClientConfiguration) (*Client, error) {
	if httpClient == nil {
		return nil, errHTTPClientMissing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(strings.TrimSpace(configuration.BaseURL)) == 0 {
		configuration.BaseURL = DefaultBaseURL
	}
	if len(strings.TrimSpace(configuration.AuthorityBaseURL)) == 0 {
		configuration.AuthorityBaseURL = DefaultAuthorityBaseURL
	}
	if len(strings.TrimSpace(configuration.Scope)) == 0 {
		configuration.Scope = defaultScopeConstant
	}

	return &Client{
		logger:        logger,
		httpClient:    httpClient,
		configuration: configuration,
	}, nil
}

// NewDefaultHTTPClient returns the http.Client used outside of tests.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultRequestTimeoutConstant}
}

// Connect acquires a client-credentials access token for the tenant.
func (client *Client) Connect(executionContext context.Context, credentials TenantCredentials) error {
	if len(strings.TrimSpace(credentials.TenantID)) == 0 {
		return errTenantMissing
	}
	if len(strings.TrimSpace(credentials.ClientID)) == 0 {
		return errClientIDMissing
	}
	if len(strings.TrimSpace(credentials.ClientSecret)) == 0 {
		return errSecretMissing
	}

	tokenEndpoint := fmt.Sprintf(tokenPathTemplateConstant, client.configuration.AuthorityBaseURL, url.PathEscape(credentials.TenantID))

	formValues := url.Values{}
	formValues.Set(grantTypeFormKeyConstant, clientCredentialsGrantConstant)
	formValues.Set(clientIdentifierFormKeyConstant, credentials.ClientID)
	formValues.Set(clientSecretFormKeyConstant, credentials.ClientSecret)
	formValues.Set(scopeFormKeyConstant, client.configuration.Scope)

	encodedForm := formValues.Encode()

	responseBody, executeError := client.executeWithRetry(executionContext, func() (*http.Request, error) {
		tokenRequest, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, tokenEndpoint, strings.NewReader(encodedForm))
		if requestError != nil {
			return nil, fmt.Errorf(requestBuildErrorTemplateConstant, tokenEndpoint, requestError)
		}
		tokenRequest.Header.Set(contentTypeHeaderNameConstant, formContentTypeConstant)
		return tokenRequest, nil
	}, true)
	if executeError != nil {
		return fmt.Errorf(tokenRequestErrorTemplateConstant, executeError)
	}

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
	}
	if decodeError := json.Unmarshal(responseBody, &tokenResponse); decodeError != nil {
		return fmt.Errorf(tokenDecodeErrorTemplateConstant, decodeError)
	}
	if len(strings.TrimSpace(tokenResponse.AccessToken)) == 0 {
		return errEmptyAccessToken
	}

	client.accessToken = tokenResponse.AccessToken
	client.tenantID = credentials.TenantID
	client.logger.Info(connectedMessageConstant, zap.String(tenantLogFieldConstant, credentials.TenantID))

	return nil
}

// Connected reports whether a tenant session is currently established.
func (client *Client) Connected() bool {
	return len(client.accessToken) > 0
}

// Disconnect clears the tenant session. Disconnecting twice is harmless.
func (client *Client) Disconnect() {
	if len(client.accessToken) == 0 {
		return
	}
	disconnectedTenant := client.tenantID
	client.accessToken = ""
	client.tenantID = ""
	client.logger.Info(disconnectedMessageConstant, zap.String(tenantLogFieldConstant, disconnectedTenant))
}

// Get issues an authorized GET and decodes the JSON object response.
func (client *Client) Get(executionContext context.Context, resourcePath string, target any) error {
	if !client.Connected() {
		return errNotConnected
	}

	requestURL := client.resolveURL(resourcePath)
	responseBody, executeError := client.executeWithRetry(executionContext, func() (*http.Request, error) {
		getRequest, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, requestURL, nil)
		if requestError != nil {
			return nil, fmt.Errorf(requestBuildErrorTemplateConstant, requestURL, requestError)
		}
		getRequest.Header.Set(authorizationHeaderNameConstant, fmt.Sprintf(bearerSchemeTemplateConstant, client.accessToken))
		return getRequest, nil
	}, true)
	if executeError != nil {
		return executeError
	}

	if target == nil {
		return nil
	}
	if decodeError := json.Unmarshal(responseBody, target); decodeError != nil {
		return fmt.Errorf(responseDecodeErrorTemplateConstant, requestURL, decodeError)
	}

	return nil
}

// Post submits a JSON body to a creation endpoint. Only admission-control
// rejections (429) are retried because creation calls are not idempotent.
func (client *Client) Post(executionContext context.Context, resourcePath string, body []byte) error {
	if !client.Connected() {
		return errNotConnected
	}
	if !json.Valid(body) {
		return fmt.Errorf(requestBodyErrorTemplateConstant, resourcePath, errInvalidJSONBody)
	}

	requestURL := client.resolveURL(resourcePath)
	_, executeError := client.executeWithRetry(executionContext, func() (*http.Request, error) {
		postRequest, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, requestURL, strings.NewReader(string(body)))
		if requestError != nil {
			return nil, fmt.Errorf(requestBuildErrorTemplateConstant, requestURL, requestError)
		}
		postRequest.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
		postRequest.Header.Set(authorizationHeaderNameConstant, fmt.Sprintf(bearerSchemeTemplateConstant, client.accessToken))
		return postRequest, nil
	}, false)

	return executeError
}

const invalidJSONBodyMessageConstant = "request body is not valid JSON"

var errInvalidJSONBody = errors.New(invalidJSONBodyMessageConstant)

func (client *Client) resolveURL(resourcePath string) string {
	if strings.HasPrefix(resourcePath, "http://") || strings.HasPrefix(resourcePath, "https://") {
		return resourcePath
	}
	return client.configuration.BaseURL + "/" + strings.TrimPrefix(resourcePath, "/")
}

// executeWithRetry runs the request with exponential backoff. Backoff
// instances are stateful, so a fresh one is created per call.
func (client *Client) executeWithRetry(executionContext context.Context, buildRequest func() (*http.Request, error), retryServerErrors bool) ([]byte, error) {
	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.InitialInterval = retryInitialIntervalConstant
	retryPolicy.MaxElapsedTime = retryMaxElapsedTimeConstant

	var responseBody []byte
	retryError := backoff.Retry(func() error {
		request, buildError := buildRequest()
		if buildError != nil {
			return backoff.Permanent(buildError)
		}

		executedBody, executeError := client.executeOnce(request)
		if executeError == nil {
			responseBody = executedBody
			return nil
		}

		var apiError APIError
		if errors.As(executeError, &apiError) {
			retryable := apiError.StatusCode == tooManyRequestsRetryableStatusConstant
			if retryServerErrors && apiError.Retryable() {
				retryable = true
			}
			if retryable {
				client.logger.Warn(retryingMessageConstant,
					zap.String(requestURLLogFieldConstant, apiError.RequestURL),
					zap.Int(statusLogFieldConstant, apiError.StatusCode))
				if apiError.RetryAfter > 0 {
					if waitError := waitForRetryWindow(executionContext, apiError.RetryAfter); waitError != nil {
						return backoff.Permanent(waitError)
					}
				}
				return executeError
			}
			return backoff.Permanent(executeError)
		}

		// Network-level failures are transient by assumption.
		client.logger.Warn(retryingMessageConstant, zap.Error(executeError))
		return executeError
	}, backoff.WithContext(retryPolicy, executionContext))
	if retryError != nil {
		return nil, retryError
	}

	return responseBody, nil
}

// waitForRetryWindow honors a server-mandated Retry-After delay before the
// backoff schedule resumes.
func waitForRetryWindow(executionContext context.Context, retryAfter time.Duration) error {
	retryTimer := time.NewTimer(retryAfter)
	defer retryTimer.Stop()

	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-retryTimer.C:
		return nil
	}
}

func (client *Client) executeOnce(request *http.Request) ([]byte, error) {
	response, transportError := client.httpClient.Do(request)
	if transportError != nil {
		return nil, transportError
	}
	defer func() {
		_ = response.Body.Close()
	}()

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return nil, fmt.Errorf(responseReadErrorTemplateConstant, request.URL.String(), readError)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, APIError{
			Method:     request.Method,
			RequestURL: request.URL.String(),
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(responseBody)),
			RetryAfter: parseRetryAfterHeader(response.Header.Get(retryAfterHeaderNameConstant)),
		}
	}

	return responseBody, nil
}

// parseRetryAfterHeader understands the delay-seconds form of Retry-After.
// HTTP-date values are ignored; the backoff schedule covers that case.
func parseRetryAfterHeader(headerValue string) time.Duration {
	trimmedValue := strings.TrimSpace(headerValue)
	if len(trimmedValue) == 0 {
		return 0
	}
	delaySeconds, parseError := strconv.Atoi(trimmedValue)
	if parseError != nil || delaySeconds <= 0 {
		return 0
	}
	return time.Duration(delaySeconds) * time.Second
}
