package httputil

import (
	"net/http"
	"time"
)

type Clients struct {
	API   *http.Client // auction API; timeout also bounds each page fetch
	Media *http.Client // image downloads, longer timeout
}

func NewClients() *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8

	return &Clients{
		API: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
		Media: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
	}
}
