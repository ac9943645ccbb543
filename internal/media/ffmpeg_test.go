package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	t.Run("ValidOutput", func(t *testing.T) {
		data := []byte(`{
			"format": {"duration": "12.040000"},
			"streams": [
				{"codec_type": "audio", "codec_name": "aac"},
				{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001"}
			]
		}`)

		info, err := parseProbeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, 12.04, info.Duration)
		assert.Equal(t, 1920, info.Width)
		assert.Equal(t, 1080, info.Height)
		assert.Equal(t, "h264", info.Codec)
		assert.InDelta(t, 29.97, info.FrameRate, 0.01)
	})

	t.Run("NoVideoStream", func(t *testing.T) {
		data := []byte(`{"format": {"duration": "3.0"}, "streams": [{"codec_type": "audio"}]}`)
		_, err := parseProbeOutput(data)
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := parseProbeOutput([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Equal(t, 0.0, parseFrameRate("25"))
	assert.Equal(t, 0.0, parseFrameRate("0/0"))
}
