package rtsp

import (
	"fmt"
	"strings"
)

// VtpSupport encodes how much of the media path a peer is willing to run
// over VTP rather than TCP.
type VtpSupport int

// VTP support levels, matching VtpType.
const (
	VtpNotSupported VtpSupport = iota
	VtpSupportsVideo
	VtpSupportsVideoAndAudio
)

// VideoProperty is the negotiable video parameter set, SPEC_FULL.md §4.4.
type VideoProperty struct {
	Codec       int
	FPS         int
	Gop         int
	Bitrate     int
	MinBitrate  int
	MaxBitrate  int
	DPI         int
	Width       int
	Height      int
	ColorStd    int
	ScreenWidth int
	ScreenHeight int
}

// AudioProperty is the negotiable audio parameter set.
type AudioProperty struct {
	Codec          int
	SampleRate     int
	SampleBitWidth int
	ChannelConfig  int
	Bitrate        int
}

// ProjectionMode is the negotiated output mode, carried in the
// his_extended_field parameter.
type ProjectionMode int

// Projection modes, matching ProjectionMode.
const (
	ProjectionModeMirror ProjectionMode = iota
	ProjectionModeStream
)

// UibcCapability is the negotiated remote-input (UIBC) capability set,
// RemoteControlParamInfo in the original: a category list plus the
// per-category capability lists that survived intersection with what
// this side locally supports.
type UibcCapability struct {
	Supported bool
	Generic   []string
	Hidc      []string
	Vendor    []string
}

// LocalUibcSupport is what this side is willing to advertise/accept for
// UIBC, used both to build the outgoing his_uibc_capability line and to
// gate which categories an incoming one is allowed to claim.
type LocalUibcSupport struct {
	Supported     bool
	Generic       []string
	Hidc          []string
	Vendor        []string
	SupportVendor bool
}

// Params is one side's advertised or negotiated capability set —
// ParamInfo in the original. FeatureSet and SupportVtp round-trip
// through the his_feature/his_vtp headers (see handleSetParameter in
// controller.go for the historical key-mismatch this preserves).
type Params struct {
	Version        int
	Video          VideoProperty
	Audio          AudioProperty
	FeatureSet     []int
	SupportVtp     VtpSupport
	DeviceType     int
	ProjectionMode ProjectionMode
	Uibc           UibcCapability
}

// VideoClamp bounds the negotiated video parameters, the Go-native
// stand-in for the VIDEO_FPS_MIN/VIDEO_GOP_MIN/VIDEO_BITRATE_MIN-style
// constants rtsp_controller.cpp hardcodes; a caller builds one from
// config.RTSPConfig.
type VideoClamp struct {
	FPSMin, FPSMax         int
	GopMin, GopMax         int
	BitrateMin, BitrateMax int
}

// ClampVideo intersects local bounds (from config.RTSPConfig) with the
// peer's advertised FPS/Gop/Bitrate range, matching the original
// negotiation's min/max narrowing instead of blindly trusting either side.
func ClampVideo(v VideoProperty, fpsMin, fpsMax, gopMin, gopMax, bitrateMin, bitrateMax int) VideoProperty {
	v.FPS = clamp(v.FPS, fpsMin, fpsMax)
	if v.Gop != -1 {
		v.Gop = clamp(v.Gop, gopMin, gopMax)
	}
	v.Bitrate = clamp(v.Bitrate, bitrateMin, bitrateMax)
	v.MinBitrate = clamp(v.MinBitrate, bitrateMin, bitrateMax)
	v.MaxBitrate = clamp(v.MaxBitrate, bitrateMin, bitrateMax)
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EncodeVideoAndAudioFormats renders the his_video_formats/his_audio_formats
// parameter lines, matching RtspEncap::SetVideoAndAudioCodecsParameter.
func EncodeVideoAndAudioFormats(p Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, "his_video_formats: codecs %d, fps %d, gop %d, bitrate %d, vbr-min %d, vbr-max %d, "+
		"dpi %d, scr-w %d, scr-h %d, color-standard %d, width %d, height %d%s",
		p.Video.Codec, p.Video.FPS, p.Video.Gop, p.Video.Bitrate, p.Video.MinBitrate, p.Video.MaxBitrate,
		p.Video.DPI, p.Video.ScreenWidth, p.Video.ScreenHeight, p.Video.ColorStd, p.Video.Width, p.Video.Height,
		msgSeparator)
	if p.Audio.Codec > 0 {
		fmt.Fprintf(&b, "his_audio_codecs: %d%s", p.Audio.Codec, msgSeparator)
	}
	return b.String()
}

// EncodeAudioFormats renders the his_audio_formats parameter line.
func EncodeAudioFormats(p Params) string {
	return fmt.Sprintf("his_audio_formats: sample-rate %d, sample-bit-width %d, channel-config %d, bitrate %d%s",
		p.Audio.SampleRate, p.Audio.SampleBitWidth, p.Audio.ChannelConfig, p.Audio.Bitrate, msgSeparator)
}

// EncodeFeatureSet renders the his_feature parameter line.
func EncodeFeatureSet(featureSet []int) string {
	if len(featureSet) == 0 {
		return ""
	}
	parts := make([]string, len(featureSet))
	for i, f := range featureSet {
		parts[i] = fmt.Sprintf("%d", f)
	}
	return fmt.Sprintf("his_feature: input_feature_set=%s,%s", strings.Join(parts, ", "), msgSeparator)
}

// EncodeVtp renders the his_vtp parameter line, or "" if VTP isn't
// offered at all.
func EncodeVtp(support VtpSupport) string {
	if support == VtpNotSupported {
		return ""
	}
	word := "supported"
	if support == VtpSupportsVideoAndAudio {
		word = "supportAV"
	}
	return fmt.Sprintf("his_vtp: %s%s", word, msgSeparator)
}

// ProcessFeatureSet parses a "input_feature_set=1, 2, 3" value into ints,
// ignoring anything it can't parse rather than failing the whole handshake.
func ProcessFeatureSet(value string) []int {
	const prefix = "input_feature_set="
	idx := strings.Index(value, prefix)
	if idx < 0 {
		return nil
	}
	rest := value[idx+len(prefix):]
	var out []int
	for _, tok := range strings.Split(rest, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if n := ParseIntSafe(tok); n >= 0 {
			out = append(out, n)
		}
	}
	return out
}

// commaToken returns the value that follows key inside a comma-separated
// "key1 val1, key2 val2" content string, matching
// RtspParse::GetTargetStr's space-keyed lookup (his_video_formats,
// his_audio_formats, his_device_type, his_extended_field all use this
// form rather than the "key=value" form his_feature/his_uibc_capability
// use).
func commaToken(content, key string) string {
	for _, part := range strings.Split(content, ",") {
		part = strings.TrimSpace(part)
		rest, ok := strings.CutPrefix(part, key)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		if rest == part {
			continue
		}
		return rest
	}
	return ""
}

// equalsToken returns the value of a "key=val1, val2" field inside a
// comma-separated content string, matching GetTargetStr's "=" keyed
// lookup used by his_uibc_capability's input_category_list/
// generic_cap_list/hidc_cap_list/vendor_cap_list fields.
func equalsToken(content, key string) string {
	idx := strings.Index(content, key)
	if idx < 0 {
		return ""
	}
	rest := content[idx+len(key):]
	if end := strings.Index(rest, "="); end >= 0 {
		// Another key= follows; back up to the preceding comma so this
		// field's own value doesn't swallow the next field's name.
		if comma := strings.LastIndexByte(rest[:end], ','); comma >= 0 {
			rest = rest[:comma]
		}
	}
	return strings.TrimSpace(rest)
}

// splitCommaList splits a ", "-joined list, matching
// Utils::SplitString(str, out, ", ").
func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// ParseVideoFormats parses a his_video_formats value into a
// VideoProperty, narrowing the codec to the lower of the two sides and
// only overwriting fps/gop when the peer's value is in range, matching
// ProcessVideoInfo.
func ParseVideoFormats(content string, local VideoProperty, fpsMin, fpsMax, gopMin, gopMax int) VideoProperty {
	v := local

	if s := commaToken(content, "codecs"); s != "" {
		if codec := ParseIntSafe(s); codec > 0 && codec < v.Codec {
			v.Codec = codec
		}
	}
	if s := commaToken(content, "fps"); s != "" {
		if fps := ParseIntSafe(s); fps >= fpsMin && fps <= fpsMax {
			v.FPS = fps
		}
	}
	if s := commaToken(content, "gop"); s != "" {
		if gop := ParseIntSafe(s); gop == -1 || (gop >= gopMin && gop <= gopMax) {
			v.Gop = gop
		}
	}
	if s := commaToken(content, "dpi"); s != "" {
		v.DPI = ParseIntSafe(s)
	}
	if s := commaToken(content, "width"); s != "" {
		v.Width = ParseIntSafe(s)
	}
	if s := commaToken(content, "height"); s != "" {
		v.Height = ParseIntSafe(s)
	}
	if s := commaToken(content, "color-standard"); s != "" {
		v.ColorStd = ParseIntSafe(s)
	}
	return v
}

// ParseAudioCodecs parses a his_audio_codecs value, a bare integer.
func ParseAudioCodecs(content string) int {
	return ParseIntSafe(content)
}

// ParseAudioFormats parses a his_audio_formats value into an
// AudioProperty, matching ProcessAudioExpandInfo: only fields present in
// content overwrite local.
func ParseAudioFormats(content string, local AudioProperty) AudioProperty {
	a := local
	if s := commaToken(content, "sample-rate"); s != "" {
		a.SampleRate = ParseIntSafe(s)
	}
	if s := commaToken(content, "sample-bit-width"); s != "" {
		a.SampleBitWidth = ParseIntSafe(s)
	}
	if s := commaToken(content, "channel-config"); s != "" {
		a.ChannelConfig = ParseIntSafe(s)
	}
	if s := commaToken(content, "bitrate"); s != "" {
		a.Bitrate = ParseIntSafe(s)
	}
	return a
}

// ParseDeviceType parses a his_device_type value's "device_type" field,
// matching ProcessSourceDeviceType/ProcessSinkDeviceType (subtype is not
// tracked separately here, mirroring this module's single DeviceType
// field rather than the original's type+subtype pair).
func ParseDeviceType(content string) int {
	if content == "" {
		return 0
	}
	return ParseIntSafe(commaToken(content, "device_type"))
}

// EncodeDeviceType renders the his_device_type parameter line.
func EncodeDeviceType(deviceType int) string {
	if deviceType <= 0 {
		return ""
	}
	return fmt.Sprintf("his_device_type: device_type %d%s", deviceType, msgSeparator)
}

// ParseProjectionMode parses a his_extended_field value's projection_mode
// token, leaving mode unchanged on anything it doesn't recognize,
// matching ProcessProjectionMode.
func ParseProjectionMode(content string, current ProjectionMode) ProjectionMode {
	switch strings.ToLower(commaToken(content, "projection_mode")) {
	case "mirror":
		return ProjectionModeMirror
	case "media_resource":
		return ProjectionModeStream
	default:
		return current
	}
}

// EncodeProjectionMode renders the his_extended_field parameter line.
func EncodeProjectionMode(mode ProjectionMode) string {
	word := "mirror"
	if mode == ProjectionModeStream {
		word = "media_resource"
	}
	return fmt.Sprintf("his_extended_field: projection_mode %s%s", word, msgSeparator)
}

// ParseUibcCapability parses a his_uibc_capability value against what
// this side locally supports, matching PreProcessUibc/ProcessUibc/
// ProcessUibcVendor: a category this side didn't advertise support for
// is never granted, and a missing input_category_list or an
// unrecognized one rejects UIBC outright rather than partially granting it.
func ParseUibcCapability(content string, local LocalUibcSupport) UibcCapability {
	if !local.Supported {
		return UibcCapability{}
	}

	categoryList := equalsToken(content, "input_category_list=")
	if categoryList == "" {
		return UibcCapability{}
	}
	if !strings.Contains(categoryList, "HIDC") && !strings.Contains(categoryList, "GENERIC") {
		return UibcCapability{}
	}

	out := UibcCapability{Supported: true}
	if strings.Contains(categoryList, "GENERIC") && len(local.Generic) > 0 {
		if genericStr := equalsToken(content, "generic_cap_list="); genericStr != "" {
			out.Generic = splitCommaList(genericStr)
		}
	}
	if strings.Contains(categoryList, "HIDC") && len(local.Hidc) > 0 {
		if hidcStr := equalsToken(content, "hidc_cap_list="); hidcStr != "" {
			out.Hidc = splitCommaList(hidcStr)
		}
	}
	if local.SupportVendor {
		if vendorStr := equalsToken(content, "vendor_cap_list="); vendorStr != "" && len(local.Vendor) > 0 {
			out.Vendor = splitCommaList(vendorStr)
		}
	}
	return out
}

// EncodeUibcCapability renders the his_uibc_capability parameter line,
// or "" if this side doesn't support UIBC at all.
func EncodeUibcCapability(local LocalUibcSupport) string {
	if !local.Supported {
		return ""
	}
	var categories []string
	var b strings.Builder
	b.WriteString("his_uibc_capability: ")
	if len(local.Generic) > 0 {
		categories = append(categories, "GENERIC")
	}
	if len(local.Hidc) > 0 {
		categories = append(categories, "HIDC")
	}
	fmt.Fprintf(&b, "input_category_list=%s", strings.Join(categories, ", "))
	if len(local.Generic) > 0 {
		fmt.Fprintf(&b, ", generic_cap_list=%s", strings.Join(local.Generic, ", "))
	}
	if len(local.Hidc) > 0 {
		fmt.Fprintf(&b, ", hidc_cap_list=%s", strings.Join(local.Hidc, ", "))
	}
	if local.SupportVendor && len(local.Vendor) > 0 {
		fmt.Fprintf(&b, ", vendor_cap_list=%s", strings.Join(local.Vendor, ", "))
	}
	b.WriteString(msgSeparator)
	return b.String()
}

// ProcessSinkVtp takes a his_vtp value and always returns
// VtpNotSupported; the value itself is not inspected. This mirrors the
// original handshake, which accepts "supported"/"supportAV"/
// "support_power_saving" as VTP offers yet forces the negotiated result
// to "not supported" either way, because no VTP transport was ever wired
// in behind the flag. Preserved
// here rather than "corrected" into actually granting VTP, since
// LinkVTP has no real UDP-backed implementation (see types.go).
func ProcessSinkVtp(value string) VtpSupport {
	return VtpNotSupported
}

// IntersectFeatureSets returns the features present in both sets,
// matching RtspController::ProcessFeatureSet's set_intersection of the
// locally advertised feature set against the peer's.
func IntersectFeatureSets(local, peer []int) []int {
	peerSet := make(map[int]struct{}, len(peer))
	for _, f := range peer {
		peerSet[f] = struct{}{}
	}
	var out []int
	for _, f := range local {
		if _, ok := peerSet[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
