package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/trieungoctam/chatbot-orchestrator/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("chatorch cli 0.1.0")
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runServerStart()
		} else {
			fmt.Fprintf(os.Stderr, "Usage: chatorch server start\n")
			os.Exit(1)
		}
	case "chat":
		runChat(args)
	case "send":
		runSend(args)
	case "job":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: chatorch job <job_id>\n")
			os.Exit(1)
		}
		runJob(args[0])
	case "cancel":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: chatorch cancel <job_id>\n")
			os.Exit(1)
		}
		runCancel(args[0])
	case "lock":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: chatorch lock <conversation_id>\n")
			os.Exit(1)
		}
		runLock(args[0])
	case "unlock":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: chatorch unlock <conversation_id>\n")
			os.Exit(1)
		}
		runUnlock(args[0])
	case "cleanup":
		runCleanup(args)
	case "status":
		runStatus()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: chatorch <command> [args]")
	fmt.Println("  version                  - 显示版本")
	fmt.Println("  config                   - 显示配置概要")
	fmt.Println("  server start             - 启动 API 服务（go run ./cmd/api）")
	fmt.Println("  chat [conversation_id]   - 交互式对话，本地累积历史并轮询结果")
	fmt.Println("  send <conv_id> <history> - 提交一段历史文本")
	fmt.Println("  job <job_id>             - 查询 Job 状态")
	fmt.Println("  cancel <job_id>          - 取消 Job")
	fmt.Println("  lock <conversation_id>   - 查询会话锁")
	fmt.Println("  unlock <conversation_id> - 强制解锁会话")
	fmt.Println("  cleanup [max_age_hours]  - 立即清理孤儿锁，可指定最大年龄")
	fmt.Println("  status                   - 缓存与 worker 池状态")
}

func runConfig() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if cfg != nil {
		fmt.Printf("api.port=%d\n", cfg.API.Port)
		fmt.Printf("api.host=%s\n", cfg.API.Host)
		fmt.Printf("cache.type=%s\n", cfg.Cache.Type)
		fmt.Printf("conversation.type=%s\n", cfg.Conversation.Type)
	}
}

func runServerStart() {
	c := exec.Command("go", "run", "./cmd/api")
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "server start: %v\n", err)
		os.Exit(1)
	}
}

// runChat 交互式对话：在本地把输入累积成角色标签历史，
// 每轮提交完整历史并轮询 Job 结果
func runChat(args []string) {
	conversationID := os.Getenv("CHATORCH_CONVERSATION_ID")
	if len(args) > 0 {
		conversationID = args[0]
	}
	if conversationID == "" {
		conversationID = fmt.Sprintf("cli-%d", time.Now().Unix())
		fmt.Printf("conversation: %s\n", conversationID)
	}

	var historyText strings.Builder
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		msg := strings.TrimSpace(line)
		if msg == "" {
			continue
		}
		if msg == "exit" || msg == "quit" {
			break
		}
		historyText.WriteString("<USER>" + msg + "</USER><br>")

		out, err := postMessage(conversationID, historyText.String(), "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
			continue
		}
		status, _ := out["status"].(string)
		jobID, _ := out["ai_job_id"].(string)
		fmt.Printf("status: %s\n", status)
		if jobID == "" {
			continue
		}

		for i := 0; i < 60; i++ {
			time.Sleep(1 * time.Second)
			j, err := getJob(jobID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
				break
			}
			jobStatus, _ := j["status"].(string)
			if jobStatus == "completed" {
				if result, ok := j["result"].(map[string]interface{}); ok {
					if text, ok := result["response_text"].(string); ok {
						fmt.Printf("bot: %s\n", text)
						historyText.WriteString("<BOT>" + text + "</BOT><br>")
					}
				}
				break
			}
			if jobStatus == "failed" || jobStatus == "cancelled" {
				fmt.Printf("  job %s\n", jobStatus)
				break
			}
		}
	}
}

func runSend(args []string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: chatorch send <conversation_id> <history>\n")
		os.Exit(1)
	}
	out, err := postMessage(args[0], args[1], "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runJob(jobID string) {
	out, err := getJob(jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runCancel(jobID string) {
	out, err := cancelJob(jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "取消失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runLock(conversationID string) {
	out, err := getLock(conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询锁失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runUnlock(conversationID string) {
	out, err := releaseLock(conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "解锁失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runCleanup(args []string) {
	maxAgeHours := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "Usage: chatorch cleanup [max_age_hours]\n")
			os.Exit(1)
		}
		maxAgeHours = n
	}
	out, err := cleanupLocks(maxAgeHours)
	if err != nil {
		fmt.Fprintf(os.Stderr, "清理失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runStatus() {
	out, err := systemStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询状态失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}
