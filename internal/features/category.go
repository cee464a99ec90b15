package features

import (
	"net/url"
	"path"
	"strings"
)

// File categories.
const (
	FileOther      = 1
	FileArchive    = 2
	FileImage      = 3
	FileDocument   = 4
	FileText       = 5
	FileExecutable = 6
)

// HTTP categories.
const (
	HTTPOther     = 1
	HTTPSocial    = 2
	HTTPCloud     = 3
	HTTPJob       = 4
	HTTPLeak      = 5
	HTTPKeylogger = 6
)

var fileExtensions = map[string]int{
	"zip": FileArchive, "rar": FileArchive, "7z": FileArchive,
	"jpg": FileImage, "png": FileImage, "bmp": FileImage,
	"doc": FileDocument, "docx": FileDocument, "pdf": FileDocument,
	"txt": FileText, "cfg": FileText, "rtf": FileText,
	"exe": FileExecutable, "sh": FileExecutable,
}

var domainCategories = map[string]int{}

func init() {
	register := func(category int, hosts ...string) {
		for _, h := range hosts {
			domainCategories[h] = category
		}
	}
	register(HTTPCloud, "dropbox.com", "drive.google.com", "mega.co.nz", "account.live.com")
	register(HTTPLeak, "wikileaks.org", "freedom.press", "theintercept.com")
	register(HTTPSocial, "facebook.com", "twitter.com", "plus.google.com", "instagr.am", "instagram.com",
		"flickr.com", "linkedin.com", "reddit.com", "about.com", "youtube.com", "pinterest.com",
		"tumblr.com", "quora.com", "vine.co", "match.com", "t.co")
	register(HTTPJob, "indeed.com", "monster.com", "careerbuilder.com", "simplyhired.com")
	register(HTTPKeylogger, "webwatchernow.com", "actionalert.com", "relytec.com", "refog.com",
		"wellresearchedreviews.com", "softactivity.com", "spectorsoft.com", "best-spy-soft.com")
}

// keepFullHost lists host fragments whose subdomain is significant.
var keepFullHost = []string{"google.com", ".co.uk", ".co.nz", "live.com"}

// FileCategory classifies a filename by extension (case-insensitive). Empty names are FileOther.
func FileCategory(filename string) int {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/"))), ".")
	if c, ok := fileExtensions[ext]; ok {
		return c
	}
	return FileOther
}

// NormalizeHost extracts and reduces the host of rawURL for category lookup.
func NormalizeHost(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	host := ""
	if u, err := url.Parse(s); err == nil {
		host = u.Hostname()
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	for _, keep := range keepFullHost {
		if strings.Contains(host, keep) {
			return host
		}
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// URLCategory classifies rawURL. Empty URLs are HTTPOther.
func URLCategory(rawURL string) int {
	host := NormalizeHost(rawURL)
	if host == "" {
		return HTTPOther
	}
	if c, ok := domainCategories[host]; ok {
		return c
	}
	lowerURL := strings.ToLower(rawURL)
	switch {
	case strings.Contains(host, "job") && (strings.Contains(host, "hunt") || strings.Contains(host, "search")):
		return HTTPJob
	case strings.Contains(host, "aol.com") && (strings.Contains(lowerURL, "recruit") || strings.Contains(lowerURL, "job")):
		return HTTPJob
	case strings.Contains(host, "keylog"):
		return HTTPKeylogger
	}
	return HTTPOther
}

// URLDepth is the number of path separators after the scheme, never negative.
func URLDepth(rawURL string) int {
	d := strings.Count(rawURL, "/") - 2
	if d < 0 {
		return 0
	}
	return d
}
