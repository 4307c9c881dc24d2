// Package useragent buckets raw User-Agent strings into a small, fixed set
// of browser, OS and device labels.
package useragent

import "strings"

const (
	BrowserEdge    = "Edge"
	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserIE      = "IE"

	OSMacOS   = "macOS"
	OSWindows = "Windows"
	OSLinux   = "Linux"
	OSiOS     = "iOS"
	OSAndroid = "Android"

	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"

	Other = "Other"
)

type Client struct {
	Browser string
	OS      string
	Device  string
}

// Classify inspects ua with case-sensitive substring tests. The three
// categories are decided independently; within each, the first match wins.
func Classify(ua string) Client {
	c := Client{Browser: Other, OS: Other, Device: DeviceDesktop}
	if ua == "" {
		return c
	}
	c.Browser = browser(ua)
	c.OS = operatingSystem(ua)
	c.Device = device(ua)
	return c
}

func browser(ua string) string {
	hasChrome := strings.Contains(ua, "Chrome/")
	hasSafari := strings.Contains(ua, "Safari/")

	switch {
	case strings.Contains(ua, "Edg/"):
		return BrowserEdge
	case hasChrome && hasSafari:
		return BrowserChrome
	case strings.Contains(ua, "Firefox/"):
		return BrowserFirefox
	case hasSafari && !hasChrome:
		return BrowserSafari
	case strings.Contains(ua, "MSIE"), strings.Contains(ua, "Trident/"):
		return BrowserIE
	}
	return Other
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return OSMacOS
	case strings.Contains(ua, "Windows"):
		return OSWindows
	case strings.Contains(ua, "Linux"):
		return OSLinux
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return OSiOS
	case strings.Contains(ua, "Android"):
		return OSAndroid
	}
	return Other
}

func device(ua string) string {
	switch {
	case strings.Contains(ua, "Mobile"), strings.Contains(ua, "iPhone"), strings.Contains(ua, "Android"):
		return DeviceMobile
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Tablet"):
		return DeviceTablet
	}
	return DeviceDesktop
}
