/*
Package dvidstore implements store.Store against the HTTP API of a DVID server.

Planes are read with

	GET  <server>/api/node/<UUID>/<data name>/raw/0_1_2/<w>_<h>_1/<x>_<y>_<z>?scale=<n>

from the grayscale and label instances, and merges are written with

	POST <server>/api/node/<UUID>/<label name>/merge?u=<user>&app=<app>

whose body is the JSON merge tuple [target, merged1, merged2, ...].
*/
package dvidstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blang/semver"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
	"github.com/janelia-flyem/dvidviewer/store"
)

// Config names the DVID server, version node, and data instances to use.
type Config struct {
	Address    string // e.g., "http://emdata.janelia.org:8000"
	UUID       string
	Labels     string
	Grayscale  string
	Token      string // optional JWT sent as a bearer token
	App        string // application name recorded with mutations
	Retries    int
	Timeout    time.Duration
	MinVersion string // oldest acceptable DVID server version, if any
}

// Store is an HTTP client for a DVID server.
type Store struct {
	config Config
	client *retryablehttp.Client
	user   string
}

// New returns a DVID client.  If a token is supplied, its "user" claim is used to
// attribute merges.
func New(c Config) (*Store, error) {
	if c.Address == "" || c.UUID == "" || c.Labels == "" {
		return nil, fmt.Errorf("DVID store requires a server address, UUID, and label instance name")
	}
	if !strings.HasPrefix(c.Address, "http://") && !strings.HasPrefix(c.Address, "https://") {
		c.Address = "http://" + c.Address
	}
	c.Address = strings.TrimRight(c.Address, "/")
	if c.Grayscale == "" {
		c.Grayscale = "grayscale"
	}
	if c.App == "" {
		c.App = "dvidviewer"
	}
	client := retryablehttp.NewClient()
	client.RetryMax = c.Retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = c.Timeout
	client.Logger = retryLogger{}

	s := &Store{config: c, client: client}
	if c.Token != "" {
		user, err := tokenUser(c.Token)
		if err != nil {
			return nil, err
		}
		s.user = user
	}
	return s, nil
}

// User returns the user merges are attributed to, taken from the token if any.
func (s *Store) User() string {
	return s.user
}

// tokenUser extracts the "user" claim without verifying the signature, which
// only the server can do.
func tokenUser(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("unable to parse DVID token: %v", err)
	}
	userClaim, found := claims["user"]
	if !found {
		return "", nil
	}
	user, ok := userClaim.(string)
	if !ok {
		return "", fmt.Errorf("user %v in DVID token is not a simple string", userClaim)
	}
	return user, nil
}

func (s *Store) nodeURL(dataname, endpoint string) string {
	return fmt.Sprintf("%s/api/node/%s/%s/%s", s.config.Address, s.config.UUID, dataname, endpoint)
}

func (s *Store) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	var reqBody interface{}
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBadRequest, err)
	}
	req.Header.Set("Accept-Encoding", "gzip")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, store.Unavailable("%s %s: %v", method, u, err)
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, store.Unavailable("bad gzip response from %s: %v", u, err)
		}
		defer zr.Close()
		r = zr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, store.Unavailable("reading response from %s: %v", u, err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: %s %s returned status %d: %s", store.ErrBadRequest, method, u, resp.StatusCode, strings.TrimSpace(string(data)))
	default:
		return nil, store.Unavailable("%s %s returned status %d: %s", method, u, resp.StatusCode, strings.TrimSpace(string(data)))
	}
}

// ServerVersion returns the version of the DVID server and checks it against any
// configured minimum version.
func (s *Store) ServerVersion(ctx context.Context) (semver.Version, error) {
	data, err := s.do(ctx, http.MethodGet, s.config.Address+"/api/server/info", nil)
	if err != nil {
		return semver.Version{}, err
	}
	var info map[string]interface{}
	if err := json.Unmarshal(data, &info); err != nil {
		return semver.Version{}, store.Unavailable("bad server info JSON: %v", err)
	}
	verStr, ok := info["DVID Version"].(string)
	if !ok {
		return semver.Version{}, store.Unavailable("server info has no DVID Version")
	}
	ver, err := semver.ParseTolerant(verStr)
	if err != nil {
		return semver.Version{}, fmt.Errorf("unable to parse DVID version %q: %v", verStr, err)
	}
	if s.config.MinVersion != "" {
		minVer, err := semver.ParseTolerant(s.config.MinVersion)
		if err != nil {
			return ver, fmt.Errorf("bad minimum DVID version %q: %v", s.config.MinVersion, err)
		}
		if ver.LT(minVer) {
			return ver, fmt.Errorf("DVID server version %s is older than required %s", ver, minVer)
		}
	}
	return ver, nil
}

type instanceInfo struct {
	Extended struct {
		MinPoint        []int32
		MaxPoint        []int32
		MaxDownresLevel uint8
	}
}

// Metadata reads the bounds and downres levels of the label instance.
func (s *Store) Metadata(ctx context.Context) (*store.Metadata, error) {
	data, err := s.do(ctx, http.MethodGet, s.nodeURL(s.config.Labels, "info"), nil)
	if err != nil {
		return nil, err
	}
	var info instanceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, store.Unavailable("bad info JSON for %q: %v", s.config.Labels, err)
	}
	ext := info.Extended
	if len(ext.MinPoint) != 3 || len(ext.MaxPoint) != 3 {
		return nil, fmt.Errorf("label instance %q has no 3d extents", s.config.Labels)
	}
	return &store.Metadata{
		MinPoint: dvid.Point3d{ext.MinPoint[0], ext.MinPoint[1], ext.MinPoint[2]},
		MaxPoint: dvid.Point3d{ext.MaxPoint[0], ext.MaxPoint[1], ext.MaxPoint[2]},
		MaxScale: ext.MaxDownresLevel,
	}, nil
}

func (s *Store) rawURL(dataname string, req store.Request) string {
	endpoint := fmt.Sprintf("raw/0_1_2/%d_%d_1/%d_%d_%d", req.Size[0], req.Size[1],
		req.Origin[0], req.Origin[1], req.Origin[2])
	u := s.nodeURL(dataname, endpoint)
	if req.Scale > 0 {
		u += fmt.Sprintf("?scale=%d", req.Scale)
	}
	return u
}

// FetchSubvolume GETs the grayscale and label planes concurrently.  Nothing is
// returned unless both succeed.
func (s *Store) FetchSubvolume(ctx context.Context, req store.Request) (*store.Subvolume, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	timedLog := dvid.NewTimeLog()
	n := req.NumVoxels()

	var grayData, labelData []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		grayData, err = s.do(gctx, http.MethodGet, s.rawURL(s.config.Grayscale, req), nil)
		return
	})
	g.Go(func() (err error) {
		labelData, err = s.do(gctx, http.MethodGet, s.rawURL(s.config.Labels, req), nil)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(grayData) != n {
		return nil, store.Unavailable("got %d bytes of grayscale for %s, expected %d", len(grayData), req, n)
	}
	if len(labelData) != 8*n {
		return nil, store.Unavailable("got %d bytes of labels for %s, expected %d", len(labelData), req, 8*n)
	}
	subvol := &store.Subvolume{
		Size:   req.Size,
		Gray:   grayData,
		Labels: make([]uint64, n),
	}
	for i := range subvol.Labels {
		subvol.Labels[i] = binary.LittleEndian.Uint64(labelData[i*8 : i*8+8])
	}
	timedLog.Debugf("fetched %s from %s", req, s.config.Address)
	return subvol, nil
}

// PersistMerge POSTs a merge of the op's labels into its target.
func (s *Store) PersistMerge(ctx context.Context, op labels.MergeOp) error {
	body, err := json.Marshal(op.Tuple())
	if err != nil {
		return err
	}
	q := url.Values{}
	if s.user != "" {
		q.Set("u", s.user)
	}
	q.Set("app", s.config.App)
	u := s.nodeURL(s.config.Labels, "merge") + "?" + q.Encode()
	timedLog := dvid.NewTimeLog()
	data, err := s.do(ctx, http.MethodPost, u, body)
	if err != nil {
		return err
	}
	var resp struct {
		MutationID uint64
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		dvid.Warningf("merge %s accepted but response unreadable: %v\n", op, err)
	}
	timedLog.Infof("persisted %s as mutation %d", op, resp.MutationID)
	return nil
}

// retryLogger routes retryablehttp messages into the dvid log.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...interface{}) {
	dvid.Errorf("%s %v\n", msg, keysAndValues)
}

func (retryLogger) Info(msg string, keysAndValues ...interface{}) {
	dvid.Debugf("%s %v\n", msg, keysAndValues)
}

func (retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	dvid.Debugf("%s %v\n", msg, keysAndValues)
}

func (retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	dvid.Warningf("%s %v\n", msg, keysAndValues)
}
