package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const serviceWorkerJS = `const CACHE_NAME = 'quitescan-cache-v1';
const PRECACHE_URLS = [
  '/',
  '/student/scan/',
];

self.addEventListener('install', event => {
  event.waitUntil(
    caches.open(CACHE_NAME).then(cache => cache.addAll(PRECACHE_URLS)).then(self.skipWaiting())
  );
});

self.addEventListener('activate', event => {
  event.waitUntil(
    caches.keys().then(keys => Promise.all(keys.map(k => { if (k !== CACHE_NAME) { return caches.delete(k); } }))).then(self.clients.claim())
  );
});

self.addEventListener('fetch', event => {
  if (event.request.method !== 'GET') return;
  event.respondWith(
    caches.match(event.request).then(cached => {
      const fetchPromise = fetch(event.request).then(response => {
        const copy = response.clone();
        caches.open(CACHE_NAME).then(cache => cache.put(event.request, copy)).catch(()=>{});
        return response;
      }).catch(() => cached);
      return cached || fetchPromise;
    })
  );
});
`

// ServiceWorker serves the offline-caching service worker script.
func (h *Handler) ServiceWorker(c *gin.Context) {
	c.Data(http.StatusOK, "application/javascript", []byte(serviceWorkerJS))
}

// RobotsTxt keeps crawlers off the admin surface.
func (h *Handler) RobotsTxt(c *gin.Context) {
	c.String(http.StatusOK, "User-agent: *\nDisallow: /dashboard/\nDisallow: /admin/\nDisallow: /report/\nDisallow: /students/\nDisallow: /qr-codes/\n\nSitemap: %s/sitemap.xml\n", h.cfg.BaseURL)
}

// SitemapXML lists the public pages.
func (h *Handler) SitemapXML(c *gin.Context) {
	base := h.cfg.BaseURL
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>` + base + `/</loc></url>
  <url><loc>` + base + `/student/register/</loc></url>
  <url><loc>` + base + `/student/scan/</loc></url>
</urlset>
`
	c.Data(http.StatusOK, "application/xml", []byte(xml))
}
