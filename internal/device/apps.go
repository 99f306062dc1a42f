// internal/device/apps.go
package device

import (
	"sort"
	"strings"
)

// appEntry maps a canonical app key to its Android package.
type appEntry struct {
	key string
	pkg string
}

// knownApps is ordered so fuzzy lookups are deterministic.
var knownApps = []appEntry{
	// Social
	{"wechat", "com.tencent.mm"},
	{"weixin", "com.tencent.mm"},
	{"qq", "com.tencent.mobileqq"},
	{"weibo", "com.sina.weibo"},
	{"dingtalk", "com.alibaba.android.rimet"},
	{"feishu", "com.ss.android.lark"},
	{"telegram", "org.telegram.messenger"},
	{"whatsapp", "com.whatsapp"},

	// Shopping
	{"taobao", "com.taobao.taobao"},
	{"jd", "com.jingdong.app.mall"},
	{"jingdong", "com.jingdong.app.mall"},
	{"pinduoduo", "com.xunmeng.pinduoduo"},
	{"xianyu", "com.taobao.idlefish"},

	// Food and delivery
	{"meituan", "com.sankuai.meituan"},
	{"eleme", "me.ele"},
	{"dianping", "com.dianping.v1"},

	// Travel
	{"gaode", "com.autonavi.minimap"},
	{"amap", "com.autonavi.minimap"},
	{"baidu_map", "com.baidu.BaiduMap"},
	{"didi", "com.sdu.didi.psnger"},
	{"ctrip", "ctrip.android.view"},
	{"12306", "com.MobileTicket"},

	// Video
	{"douyin", "com.ss.android.ugc.aweme"},
	{"tiktok", "com.zhiliaoapp.musically"},
	{"kuaishou", "com.smile.gifmaker"},
	{"bilibili", "tv.danmaku.bili"},
	{"tencent_video", "com.tencent.qqlive"},
	{"youku", "com.youku.phone"},
	{"iqiyi", "com.qiyi.video"},

	// Music
	{"netease_music", "com.netease.cloudmusic"},
	{"qq_music", "com.tencent.qqmusic"},
	{"kugou", "com.kugou.android"},
	{"ximalaya", "com.ximalaya.ting.android"},

	// Community
	{"xiaohongshu", "com.xingin.xhs"},
	{"zhihu", "com.zhihu.android"},
	{"douban", "com.douban.frodo"},

	// Tools
	{"chrome", "com.android.chrome"},
	{"settings", "com.android.settings"},
	{"camera", "com.android.camera"},
	{"gallery", "com.android.gallery3d"},
	{"calculator", "com.android.calculator2"},
	{"clock", "com.android.deskclock"},
	{"calendar", "com.android.calendar"},
	{"contacts", "com.android.contacts"},
	{"messages", "com.android.mms"},
	{"phone", "com.android.dialer"},
	{"files", "com.android.documentsui"},
	{"notes", "com.android.notes"},

	// Payments and misc
	{"alipay", "com.eg.android.AlipayGphone"},
	{"unionpay", "com.unionpay"},
	{"cainiao", "com.cainiao.wireless"},
	{"keep", "com.gotokeep.keep"},
}

// appAliases maps alternative spellings to a key of knownApps.
var appAliases = map[string]string{
	"netease": "netease_music",
	"wymusic": "netease_music",
	"qqmusic": "qq_music",
	"red":     "xiaohongshu",
	"xhs":     "xiaohongshu",
	"memo":    "notes",
}

// chineseApps maps display names as users and models write them.
var chineseApps = map[string]string{
	"微信":    "com.tencent.mm",
	"微博":    "com.sina.weibo",
	"钉钉":    "com.alibaba.android.rimet",
	"飞书":    "com.ss.android.lark",
	"淘宝":    "com.taobao.taobao",
	"京东":    "com.jingdong.app.mall",
	"拼多多":   "com.xunmeng.pinduoduo",
	"闲鱼":    "com.taobao.idlefish",
	"美团":    "com.sankuai.meituan",
	"饿了么":   "me.ele",
	"大众点评":  "com.dianping.v1",
	"高德地图":  "com.autonavi.minimap",
	"百度地图":  "com.baidu.BaiduMap",
	"滴滴":    "com.sdu.didi.psnger",
	"携程":    "ctrip.android.view",
	"抖音":    "com.ss.android.ugc.aweme",
	"快手":    "com.smile.gifmaker",
	"哔哩哔哩":  "tv.danmaku.bili",
	"b站":    "tv.danmaku.bili",
	"腾讯视频":  "com.tencent.qqlive",
	"优酷":    "com.youku.phone",
	"爱奇艺":   "com.qiyi.video",
	"网易云音乐": "com.netease.cloudmusic",
	"qq音乐":  "com.tencent.qqmusic",
	"酷狗":    "com.kugou.android",
	"喜马拉雅":  "com.ximalaya.ting.android",
	"小红书":   "com.xingin.xhs",
	"知乎":    "com.zhihu.android",
	"豆瓣":    "com.douban.frodo",
	"支付宝":   "com.eg.android.AlipayGphone",
	"云闪付":   "com.unionpay",
	"菜鸟":    "com.cainiao.wireless",
	"设置":    "com.android.settings",
	"相机":    "com.android.camera",
	"相册":    "com.android.gallery3d",
	"计算器":   "com.android.calculator2",
	"时钟":    "com.android.deskclock",
	"日历":    "com.android.calendar",
	"通讯录":   "com.android.contacts",
	"短信":    "com.android.mms",
	"电话":    "com.android.dialer",
	"文件":    "com.android.documentsui",
	"备忘录":   "com.android.notes",
}

// FindPackage resolves an app name, alias, Chinese display name or package
// name to an Android package.
func FindPackage(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if looksLikePackage(trimmed) {
		return trimmed, true
	}

	key := normalizeAppName(trimmed, true)
	for _, k := range []string{normalizeAppName(trimmed, false), key} {
		if pkg, ok := exactPackage(k); ok {
			return pkg, true
		}
	}
	if len(key) < 2 {
		return "", false
	}

	// Fuzzy: the longest known key contained in, or containing, the name.
	best, bestLen := "", 0
	for _, e := range knownApps {
		if (strings.Contains(e.key, key) || strings.Contains(key, e.key)) && len(e.key) > bestLen {
			best, bestLen = e.pkg, len(e.key)
		}
	}
	for _, zh := range ChineseAppNames() {
		if strings.Contains(key, zh) && len(zh) > bestLen {
			best, bestLen = chineseApps[zh], len(zh)
		}
	}
	return best, best != ""
}

// SupportedApps lists the English app keys, sorted.
func SupportedApps() []string {
	out := make([]string, 0, len(knownApps))
	for _, e := range knownApps {
		out = append(out, e.key)
	}
	sort.Strings(out)
	return out
}

// ChineseAppNames lists the Chinese display names, sorted.
func ChineseAppNames() []string {
	out := make([]string, 0, len(chineseApps))
	for zh := range chineseApps {
		out = append(out, zh)
	}
	sort.Strings(out)
	return out
}

func exactPackage(key string) (string, bool) {
	if pkg, ok := lookupKey(key); ok {
		return pkg, true
	}
	if canonical, ok := appAliases[key]; ok {
		return lookupKey(canonical)
	}
	pkg, ok := chineseApps[key]
	return pkg, ok
}

func lookupKey(key string) (string, bool) {
	for _, e := range knownApps {
		if e.key == key {
			return e.pkg, true
		}
	}
	return "", false
}

// normalizeAppName lowercases and joins words with underscores. With
// stripSuffix a trailing "app" or its Chinese equivalents is dropped.
func normalizeAppName(name string, stripSuffix bool) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if stripSuffix {
		for _, suffix := range []string{"app", "应用", "软件"} {
			if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
				s = strings.TrimSuffix(s, suffix)
				break
			}
		}
	}
	return strings.Join(strings.Fields(s), "_")
}

// looksLikePackage reports whether name is already a dotted package name.
func looksLikePackage(name string) bool {
	return strings.Count(name, ".") >= 2 && !strings.ContainsAny(name, " \t")
}
