package llm

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// talkerPrefixes and workerPrefixes order GGUF discovery. First prefix with
// a matching file wins; with no match the first .gguf in the directory is
// used for both roles.
var (
	talkerPrefixes = []string{"qwen2.5-3b", "qwen2.5-1.5b", "phi-3", "gemma-2-2b", "tinyllama"}
	workerPrefixes = []string{"qwen2.5-coder", "deepseek-coder", "qwen2.5-14b", "llama-3", "mistral"}
)

// DiscoverModels locates the talker and worker GGUF files in modelDir.
// Either result may be empty when the directory holds no usable file.
func DiscoverModels(modelDir string) (talker, worker string) {
	entries, err := os.ReadDir(modelDir)
	if err != nil {
		return "", ""
	}
	var ggufs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".gguf") {
			continue
		}
		ggufs = append(ggufs, e.Name())
	}
	if len(ggufs) == 0 {
		return "", ""
	}
	sort.Strings(ggufs)

	talker = matchPrefix(ggufs, talkerPrefixes)
	worker = matchPrefix(ggufs, workerPrefixes)
	if talker == "" {
		talker = ggufs[0]
	}
	if worker == "" {
		worker = talker
	}
	return filepath.Join(modelDir, talker), filepath.Join(modelDir, worker)
}

func matchPrefix(files, prefixes []string) string {
	for _, p := range prefixes {
		for _, f := range files {
			if strings.HasPrefix(strings.ToLower(f), p) {
				return f
			}
		}
	}
	return ""
}

// minGPUMemoryMB is the VRAM floor for full-layer offload.
const minGPUMemoryMB = 6144

// GPULayers resolves how many layers to offload: the LLAMA_N_GPU_LAYERS
// env value when set (auto | 0 | -1 | <int>), else -1 (all layers) when a
// capable GPU is detected, else 0.
func GPULayers() int {
	if v := os.Getenv("LLAMA_N_GPU_LAYERS"); v != "" && v != "auto" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if gpuMemoryMB() >= minGPUMemoryMB {
		return -1
	}
	return 0
}

// gpuMemoryMB queries nvidia-smi for total VRAM; 0 when unavailable.
func gpuMemoryMB() int {
	out, err := exec.Command("nvidia-smi", "--query-gpu=memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0
	}
	first := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	n, err := strconv.Atoi(first)
	if err != nil {
		return 0
	}
	return n
}
