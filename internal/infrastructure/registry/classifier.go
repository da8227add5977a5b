package registry

import (
	"strings"

	"github.com/doeshing/aiosd/internal/domain"
)

// taskKeywords is the data-driven classification table. Matching is
// lower-cased substring containment; each keyword hit scores one point for
// its task type. The highest-scoring type wins, ties favor the declaration
// order in domain.TaskTypes, and a zero score falls back to general.
var taskKeywords = map[domain.TaskType][]string{
	domain.TaskFileOps: {
		"file", "files", "document", "folder", "directory", "path",
		"ls", "find", "grep", "cat", "head", "tail", "cp", "mv", "rm", "mkdir", "touch",
	},
	domain.TaskProcessOps: {
		"process", "processes", "ps", "kill", "pkill", "pgrep",
		"top", "htop", "systemctl", "service", "daemon",
	},
	domain.TaskNetworkOps: {
		"network", "networking", "connection", "port", "socket",
		"http", "https", "ftp", "ssh", "telnet", "ping", "curl", "wget",
	},
	domain.TaskSystemOps: {
		"system", "hardware", "cpu", "memory", "ram", "disk",
		"storage", "performance", "monitor", "resource",
	},
	domain.TaskDevOps: {
		"code", "coding", "development", "programming", "compile",
		"build", "deploy", "git", "github", "repository",
	},
	domain.TaskDataOps: {
		"data", "database", "db", "sql", "nosql", "query",
		"search", "filter", "sort", "export", "import",
	},
	domain.TaskSecurityOps: {
		"security", "permission", "access", "authentication",
		"authorization", "login", "user", "group", "sudo",
	},
}

// ClassifyTask maps a natural-language command to a task type.
func ClassifyTask(command string) domain.TaskType {
	lower := strings.ToLower(command)

	best := domain.TaskGeneral
	bestScore := 0
	for _, task := range domain.TaskTypes {
		score := 0
		for _, kw := range taskKeywords[task] {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = task
		}
	}
	return best
}

// commandActionWords mark input as an executable command request. Checked
// before chat words; any substring hit wins.
var commandActionWords = []string{
	"add", "commit", "push", "pull", "clone", "init", "status", "log", "branch", "checkout",
	"merge", "rebase", "stash", "reset", "revert", "tag", "fetch", "remote", "config",
	"list", "show", "find", "search", "grep", "cat", "head", "tail", "less", "more",
	"create", "delete", "remove", "rm", "mkdir", "touch", "cp", "copy", "mv", "move",
	"install", "uninstall", "update", "upgrade", "download", "wget", "curl", "scp", "rsync",
	"run", "start", "stop", "restart", "kill", "pkill", "killall", "ps", "top", "htop",
	"check", "test", "verify", "validate", "get", "set", "export", "import", "source",
	"open", "close", "edit", "view", "read", "write", "save", "load", "backup", "restore",
	"build", "compile", "make", "cmake", "configure", "package",
	"mount", "umount", "format", "partition", "fsck", "dd", "tar", "zip", "unzip",
	"chmod", "chown", "chgrp", "umask", "sudo", "su", "whoami", "id", "groups",
	"ping", "traceroute", "netstat", "ss", "iptables", "firewall", "ufw",
	"docker", "podman", "kubectl", "helm", "terraform", "ansible",
	"python", "pip", "node", "npm", "yarn", "cargo", "go", "java", "maven", "gradle",
}

// chatWords mark conversational input.
var chatWords = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "how do you", "what is", "what are", "who is", "who are",
	"when is", "when will", "where is", "where are", "why is", "why are",
	"tell me", "explain", "describe", "define", "what does", "how does",
	"joke", "funny", "humor", "weather", "time", "date", "temperature",
	"thanks", "thank you", "appreciate", "help", "please", "could you",
	"would you", "can you", "should i", "do you think", "what do you think",
}

// ClassifyInput labels input as "command" or "chat". Command action words
// take priority; with no hit on either list the input defaults to chat.
func ClassifyInput(input string) string {
	lower := strings.ToLower(input)
	for _, w := range commandActionWords {
		if strings.Contains(lower, w) {
			return "command"
		}
	}
	for _, w := range chatWords {
		if strings.Contains(lower, w) {
			return "chat"
		}
	}
	return "chat"
}
