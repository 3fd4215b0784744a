package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// EnvFilesKey: 로드할 dotenv 파일 목록을 지정하는 환경 변수 (공백/콤마 구분)
const EnvFilesKey = "REGISTRY_ENV_FILES"

// LoadDotenvIfPresent: 존재하는 dotenv 파일만 순서대로 로드한다.
// 인자가 없으면 REGISTRY_ENV_FILES, 그것도 없으면 ".env" 를 쓴다.
// 이미 설정된 환경 변수는 덮어쓰지 않으므로 앞 파일의 값이 우선한다.
func LoadDotenvIfPresent(paths ...string) error {
	if len(paths) == 0 {
		paths = StringListFromEnv(EnvFilesKey, []string{".env"})
	}

	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat dotenv %s failed: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	if len(loaded) == 0 {
		return nil
	}

	if err := godotenv.Load(loaded...); err != nil {
		return fmt.Errorf("load dotenv %v failed: %w", loaded, err)
	}
	return nil
}
