package davsdk

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Resource is a single entry from a PROPFIND listing.
type Resource struct {
	Path         string // server path, url-decoded
	Name         string // base name of Path
	ETag         string // opaque version token, quotes stripped
	Size         int64
	LastModified time.Time
	IsCollection bool
}

// multistatus is the WebDAV PROPFIND response envelope.
type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string        `xml:"href"`
	Propstats []davPropstat `xml:"propstat"`
}

type davPropstat struct {
	Status string  `xml:"status"`
	Prop   davProp `xml:"prop"`
}

type davProp struct {
	ETag          string          `xml:"getetag"`
	LastModified  string          `xml:"getlastmodified"`
	ContentLength int64           `xml:"getcontentlength"`
	ResourceType  davResourceType `xml:"resourcetype"`
}

type davResourceType struct {
	Collection *struct{} `xml:"collection"`
}

// resource converts a response entry into a Resource. Only propstats with a
// 200 status carry usable props.
func (r *davResponse) resource() *Resource {
	res := &Resource{}

	href := r.Href
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	res.Path = href
	res.Name = path.Base(strings.TrimSuffix(href, "/"))

	for _, ps := range r.Propstats {
		if !strings.Contains(ps.Status, "200") {
			continue
		}
		res.ETag = strings.Trim(ps.Prop.ETag, `"`)
		res.Size = ps.Prop.ContentLength
		res.IsCollection = ps.Prop.ResourceType.Collection != nil
		if ps.Prop.LastModified != "" {
			if t, err := http.ParseTime(ps.Prop.LastModified); err == nil {
				res.LastModified = t
			}
		}
	}

	return res
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
  <D:prop>
    <D:getetag/>
    <D:getlastmodified/>
    <D:getcontentlength/>
    <D:resourcetype/>
  </D:prop>
</D:propfind>`
