// Package recovery turns a failed training transcript into remediation
// suggestions.
package recovery

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

// Suggestion represents a recovery suggestion for a failed run.
type Suggestion struct {
	Error       string   // Description of the detected problem
	Category    string   // package, dataset, resource, permission, environment
	Commands    []string // Commands that may fix it, run on the training host
	Explanation string
	Confidence  float64
}

// Analyzer detects known failures in training output.
type Analyzer struct {
	rules []recoveryRule
}

type recoveryRule struct {
	name    string
	pattern *regexp.Regexp
	suggest func(matches []string) *Suggestion
}

// NewAnalyzer creates an analyzer with the default rules.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		rules: defaultRules(),
	}
}

// Analyze examines the transcript of a run and returns suggestions, most
// confident first. Successful runs without error indicators yield nil.
func (a *Analyzer) Analyze(output string, exitCode int) []*Suggestion {
	if exitCode == 0 && !containsErrorIndicators(output) {
		return nil
	}

	var suggestions []*Suggestion
	for _, rule := range a.rules {
		if matches := rule.pattern.FindStringSubmatch(output); matches != nil {
			if s := rule.suggest(matches); s != nil {
				suggestions = append(suggestions, s)
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions
}

func containsErrorIndicators(output string) bool {
	lowered := strings.ToLower(output)
	for _, ind := range []string{
		"traceback", "error:", "error ", "failed", "not found",
		"permission denied", "no such file", "killed", "out of memory",
	} {
		if strings.Contains(lowered, ind) {
			return true
		}
	}
	return false
}

func group(matches []string, i int) string {
	if len(matches) > i {
		return matches[i]
	}
	return ""
}

func defaultRules() []recoveryRule {
	return []recoveryRule{
		{
			name:    "python_module",
			pattern: regexp.MustCompile(`ModuleNotFoundError: No module named '([\w.]+)'`),
			suggest: func(m []string) *Suggestion {
				module := strings.SplitN(group(m, 1), ".", 2)[0]
				return &Suggestion{
					Error:       "Python module not found: " + module,
					Category:    "package",
					Commands:    []string{"pip3 install " + pipName(module), "python3 -m pip list"},
					Explanation: "The training environment is missing a package. Install it for the interpreter that runs the script.",
					Confidence:  0.9,
				}
			},
		},
		{
			name:    "file_not_found",
			pattern: regexp.MustCompile(`(?:FileNotFoundError|No such file or directory)[^']*'([^']+)'`),
			suggest: func(m []string) *Suggestion {
				file := group(m, 1)
				return &Suggestion{
					Error:       "File not found: " + file,
					Category:    "dataset",
					Commands:    []string{"ls -la " + path.Dir(file)},
					Explanation: "The script could not open a file. Upload the dataset in step 3 for the selected task, or fix the path in the script.",
					Confidence:  0.8,
				}
			},
		},
		{
			name:    "column_missing",
			pattern: regexp.MustCompile(`KeyError: "?'([^']+)'`),
			suggest: func(m []string) *Suggestion {
				return &Suggestion{
					Error:       "Column missing from dataset: " + group(m, 1),
					Category:    "dataset",
					Explanation: "The dataset does not have a column the script expects. Check the header row of the uploaded file.",
					Confidence:  0.7,
				}
			},
		},
		{
			name:    "parse_error",
			pattern: regexp.MustCompile(`(?i)(ParserError|UnicodeDecodeError|EmptyDataError)`),
			suggest: func(m []string) *Suggestion {
				return &Suggestion{
					Error:       "Dataset could not be parsed: " + group(m, 1),
					Category:    "dataset",
					Explanation: "The file is not in the expected format or encoding. Save it as UTF-8 CSV and upload it again.",
					Confidence:  0.75,
				}
			},
		},
		{
			name:    "out_of_memory",
			pattern: regexp.MustCompile(`(?i)(MemoryError|out of memory|Cannot allocate memory)`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Out of memory",
					Category:    "resource",
					Commands:    []string{"free -h", "npu-smi info"},
					Explanation: "The run ran out of host or device memory. Reduce the batch size or the dataset, or stop other jobs on the device.",
					Confidence:  0.85,
				}
			},
		},
		{
			name:    "killed",
			pattern: regexp.MustCompile(`(?m)^Killed$`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Process killed",
					Category:    "resource",
					Commands:    []string{"dmesg | tail -20", "free -h"},
					Explanation: "The kernel killed the process, usually because memory ran out.",
					Confidence:  0.6,
				}
			},
		},
		{
			name:    "disk_full",
			pattern: regexp.MustCompile(`(?i)no space left on device`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Disk full",
					Category:    "resource",
					Commands:    []string{"df -h", "du -sh * | sort -h | tail -10"},
					Explanation: "The disk is full. Remove old outputs and result files.",
					Confidence:  0.9,
				}
			},
		},
		{
			name:    "permission_denied",
			pattern: regexp.MustCompile(`(?i)permission denied`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Permission denied",
					Category:    "permission",
					Commands:    []string{"ls -la", "id"},
					Explanation: "The script cannot read or write a path. Check the owner of the task directory and its output files.",
					Confidence:  0.7,
				}
			},
		},
		{
			name:    "interpreter_missing",
			pattern: regexp.MustCompile(`(\S+): (?:command )?not found`),
			suggest: func(m []string) *Suggestion {
				cmd := path.Base(group(m, 1))
				return &Suggestion{
					Error:       "Command not found: " + cmd,
					Category:    "environment",
					Commands:    []string{"which python3", "ls /usr/bin/python*"},
					Explanation: "The interpreter is not on PATH for this session. Set training.interpreter in the config to its full path.",
					Confidence:  0.7,
				}
			},
		},
	}
}

// pipName maps import names to the package names pip knows.
func pipName(module string) string {
	names := map[string]string{
		"sklearn": "scikit-learn",
		"cv2":     "opencv-python",
		"yaml":    "pyyaml",
		"PIL":     "pillow",
	}
	if n, ok := names[module]; ok {
		return n
	}
	return module
}
