package ingest

import (
	"fmt"
	"strings"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
)

// formatIngestError provides user-friendly error messages for pipeline failures
func formatIngestError(err error, videoURL string) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "video is not available"), strings.Contains(errMsg, "video is private"):
		return fmt.Errorf("❌ Video '%s' is not available. Please check:\n   • URL is correct\n   • Video is not private or deleted", videoURL)
	case strings.Contains(errMsg, "yt-dlp is not installed"):
		return fmt.Errorf("❌ yt-dlp is required but not installed.\n   • Install: pip install yt-dlp\n   • Or visit: https://github.com/yt-dlp/yt-dlp")
	case strings.Contains(errMsg, "ffmpeg is required"):
		return fmt.Errorf("❌ ffmpeg is required to extract audio.\n   • Install it with your package manager (apt, brew, choco)")
	case strings.Contains(errMsg, "Whisper is not installed"):
		return fmt.Errorf("❌ Whisper is required but not installed.\n   • Install: pip install openai-whisper\n   • Or visit: https://github.com/openai/whisper")
	case strings.Contains(errMsg, "pyannote.audio is not installed"), strings.Contains(errMsg, "diarization dependencies missing"):
		return fmt.Errorf("❌ Speaker diarization requires pyannote.audio.\n   • Install: pip install pyannote.audio\n   • Or rerun with --allow-missing-speakers")
	case strings.Contains(errMsg, "HF_TOKEN"):
		return fmt.Errorf("❌ The diarization model could not be loaded.\n   • Set HF_TOKEN (or ingest.hf_token) to a Hugging Face token\n   • Accept the model terms on huggingface.co\n   • Or rerun with --allow-missing-speakers")
	case strings.Contains(errMsg, "insufficient memory"):
		return fmt.Errorf("❌ Not enough memory for transcription.\n   • Try using a smaller model: --model tiny or --model base\n   • Reduce --workers")
	case strings.Contains(errMsg, "GPU/CUDA error"):
		return fmt.Errorf("❌ GPU error during processing.\n   • Retry with --device cpu")
	case strings.Contains(errMsg, "network connection error"):
		return fmt.Errorf("❌ Network connection failed.\n   • Check your internet connection\n   • Verify firewall/proxy settings")
	case strings.Contains(errMsg, "rate limited"):
		return fmt.Errorf("❌ Rate limit reached.\n   • Wait a few minutes and try again")
	case strings.Contains(errMsg, "unsupported model"):
		return fmt.Errorf("❌ Invalid Whisper model specified.\n   • Available models: tiny, base, small, medium, large")
	case strings.Contains(errMsg, "unsupported language"):
		return fmt.Errorf("❌ Invalid language code specified.\n   • Use language codes like: en, ja, es, fr, de\n   • Or use 'auto' for automatic detection")
	}

	stage := "Ingestion"
	switch errors.CodeOf(err) {
	case errors.CodeAcquisition:
		stage = "Download"
	case errors.CodeTranscription:
		stage = "Transcription"
	case errors.CodeDiarization:
		stage = "Speaker diarization"
	}
	return fmt.Errorf("❌ %s failed for '%s':\n   %s", stage, videoURL, errMsg)
}
