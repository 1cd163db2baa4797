package rtsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampVideo(t *testing.T) {
	v := VideoProperty{FPS: 200, Gop: 5, Bitrate: 100_000_000}
	clamped := ClampVideo(v, 20, 60, 30, 600, 500_000, 20_000_000)
	assert.Equal(t, 60, clamped.FPS)
	assert.Equal(t, 30, clamped.Gop)
	assert.Equal(t, 20_000_000, clamped.Bitrate)
}

func TestProcessFeatureSet(t *testing.T) {
	got := ProcessFeatureSet("input_feature_set=1, 2, 3")
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestProcessFeatureSetNoPrefix(t *testing.T) {
	assert.Nil(t, ProcessFeatureSet("garbage"))
}

func TestIntersectFeatureSets(t *testing.T) {
	got := IntersectFeatureSets([]int{1, 2, 3}, []int{2, 3, 4})
	assert.Equal(t, []int{2, 3}, got)
}

func TestProcessSinkVtpAlwaysNotSupported(t *testing.T) {
	assert.Equal(t, VtpNotSupported, ProcessSinkVtp("supported"))
	assert.Equal(t, VtpNotSupported, ProcessSinkVtp("supportAV"))
	assert.Equal(t, VtpNotSupported, ProcessSinkVtp(""))
}

func TestEncodeVtpOmitsWhenNotSupported(t *testing.T) {
	assert.Equal(t, "", EncodeVtp(VtpNotSupported))
	assert.Contains(t, EncodeVtp(VtpSupportsVideo), "supported")
	assert.Contains(t, EncodeVtp(VtpSupportsVideoAndAudio), "supportAV")
}
