package git

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Remote identifies a hosted repository.
type Remote struct {
	Host  string
	Owner string
	Repo  string
}

// ParseRemote extracts owner and repository from a remote URL. Supported
// forms are https://host/owner/repo(.git), ssh://git@host/owner/repo(.git),
// git@host:owner/repo(.git) and the ssh-config alias form alias:owner/repo.
func ParseRemote(raw string) (*Remote, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty remote URL")
	}

	var host, path string
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid remote URL %q: %w", redact(raw), err)
		}
		host, path = u.Hostname(), u.Path
	} else {
		i := strings.Index(raw, ":")
		if i <= 0 {
			return nil, fmt.Errorf("unrecognized remote URL %q", raw)
		}
		host, path = raw[:i], raw[i+1:]
		if at := strings.LastIndex(host, "@"); at >= 0 {
			host = host[at+1:]
		}
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("remote URL %q is not of the form host/owner/repo", redact(raw))
	}
	return &Remote{Host: host, Owner: parts[0], Repo: parts[1]}, nil
}

// IsHTTPS reports whether a remote URL uses http(s) transport.
func IsHTTPS(raw string) bool {
	return strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://")
}

// WithToken returns an https remote URL carrying token as its credential.
func WithToken(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid remote URL: %w", err)
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}

// BranchName is the per-ticket fix branch: fix/<key>-<YYYYMMDD>.
func BranchName(key string, day time.Time) string {
	return "fix/" + key + "-" + day.Format("20060102")
}

// BatchBranchName is a fix branch for several tickets at once. The
// unix-millisecond suffix keeps reruns on the same day distinct.
func BatchBranchName(day, now time.Time) string {
	return "fix/batch-" + day.Format("20060102") + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}
