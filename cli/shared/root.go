package shared

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// PromptConfigString asks for key on stdin and saves the answer to the
// config file.
func PromptConfigString(key string) string {
	fmt.Printf("Enter your %s: ", key)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()

	viper.Set(key, scanner.Text())
	if err := WriteConfig(); err != nil {
		fmt.Println("Error writing config: " + err.Error())
		os.Exit(1)
	}
	return viper.GetString(key)
}

// WriteConfig saves viper's settings, creating the config file on first use.
func WriteConfig() error {
	if viper.ConfigFileUsed() == "" {
		return viper.SafeWriteConfig()
	}
	return viper.WriteConfig()
}

// ConfigString returns key from the config file or environment, prompting
// for it when unset.
func ConfigString(key string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	if v := os.Getenv(strings.ToUpper(key)); v != "" {
		return v
	}
	return PromptConfigString(key)
}
