package apiserver

import (
	"net/http"
)

// HealthText is the body served on the root path.
const HealthText = "Backend server is running!"

// HealthHandler 返回固定的存活文本，供负载均衡探测使用。
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(HealthText))
}
