// internal/device/apps_test.go
package device

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindPackage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{"english key", "WeChat", "com.tencent.mm", true},
		{"words joined with underscores", "Tencent Video", "com.tencent.qqlive", true},
		{"trailing app suffix", "Taobao App", "com.taobao.taobao", true},
		{"name ending in app is not stripped first", "WhatsApp", "com.whatsapp", true},
		{"alias", "xhs", "com.xingin.xhs", true},
		{"chinese name", "支付宝", "com.eg.android.AlipayGphone", true},
		{"chinese name beats fuzzy english prefix", "QQ音乐", "com.tencent.qqmusic", true},
		{"chinese suffix", "淘宝应用", "com.taobao.taobao", true},
		{"package passthrough", "com.example.shop", "com.example.shop", true},
		{"fuzzy substring", "baidu", "com.baidu.BaiduMap", true},
		{"unknown", "Nonexistent Thing", "", false},
		{"empty", "  ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindPackage(tt.input)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupportedApps_Sorted(t *testing.T) {
	apps := SupportedApps()
	assert.True(t, sort.StringsAreSorted(apps))
	assert.Contains(t, apps, "wechat")
	assert.Contains(t, ChineseAppNames(), "微信")
}
