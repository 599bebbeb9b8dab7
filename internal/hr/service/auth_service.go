package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bitfantasy/nimo-hr/internal/config"
	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FeishuOAuthURL 飞书OAuth授权URL
const FeishuOAuthURL = "https://open.feishu.cn/open-apis/authen/v1/authorize"

// FeishuTokenURL 飞书获取Token URL
const FeishuTokenURL = "https://open.feishu.cn/open-apis/authen/v1/oidc/access_token"

// FeishuUserInfoURL 飞书获取用户信息URL
const FeishuUserInfoURL = "https://open.feishu.cn/open-apis/authen/v1/user_info"

// FeishuAppTokenURL 飞书获取应用Token URL
const FeishuAppTokenURL = "https://open.feishu.cn/open-apis/auth/v3/app_access_token/internal"

// AuthService 认证服务
type AuthService struct {
	userRepo *repository.UserRepository
	rdb      *redis.Client
	cfg      *config.Config
}

// NewAuthService 创建认证服务
func NewAuthService(userRepo *repository.UserRepository, rdb *redis.Client, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		rdb:      rdb,
		cfg:      cfg,
	}
}

// TokenPair Token对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// FeishuTokenResponse 飞书Token响应
type FeishuTokenResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		TokenType        string `json:"token_type"`
		ExpiresIn        int    `json:"expires_in"`
		RefreshExpiresIn int    `json:"refresh_expires_in"`
	} `json:"data"`
}

// FeishuUserInfoResponse 飞书用户信息响应
type FeishuUserInfoResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Name      string `json:"name"`
		EnName    string `json:"en_name"`
		AvatarUrl string `json:"avatar_url"`
		OpenId    string `json:"open_id"`
		UnionId   string `json:"union_id"`
		Email     string `json:"email"`
		UserId    string `json:"user_id"`
		Mobile    string `json:"mobile"`
	} `json:"data"`
}

// FeishuAppTokenResponse 飞书应用Token响应
type FeishuAppTokenResponse struct {
	Code           int    `json:"code"`
	Msg            string `json:"msg"`
	AppAccessToken string `json:"app_access_token"`
	Expire         int    `json:"expire"`
}

// GetFeishuLoginURL 获取飞书登录URL
func (s *AuthService) GetFeishuLoginURL(state string) string {
	params := url.Values{}
	params.Set("app_id", s.cfg.Feishu.AppID)
	params.Set("redirect_uri", s.cfg.Feishu.RedirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)

	return fmt.Sprintf("%s?%s", FeishuOAuthURL, params.Encode())
}

// HandleFeishuCallback 处理飞书回调
func (s *AuthService) HandleFeishuCallback(ctx context.Context, code string) (*entity.User, *TokenPair, error) {
	// 1. 获取应用access_token
	appToken, err := s.getFeishuAppToken(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get app token: %w", err)
	}

	// 2. 使用code换取用户access_token
	userToken, err := s.getFeishuUserToken(ctx, appToken, code)
	if err != nil {
		return nil, nil, fmt.Errorf("get user token: %w", err)
	}

	// 3. 获取用户信息
	feishuUser, err := s.getFeishuUserInfo(ctx, userToken)
	if err != nil {
		return nil, nil, fmt.Errorf("get user info: %w", err)
	}

	// 4. 创建或更新用户
	user, err := s.createOrUpdateUser(ctx, feishuUser)
	if err != nil {
		return nil, nil, fmt.Errorf("create or update user: %w", err)
	}

	// 5. 生成JWT Token
	tokenPair, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate token: %w", err)
	}

	return user, tokenPair, nil
}

// getFeishuAppToken 获取飞书应用Token，优先走Redis缓存
func (s *AuthService) getFeishuAppToken(ctx context.Context) (string, error) {
	cacheKey := "hr:feishu:app_token"
	cached, err := s.rdb.Get(ctx, cacheKey).Result()
	if err == nil && cached != "" {
		return cached, nil
	}

	reqBody := map[string]string{
		"app_id":     s.cfg.Feishu.AppID,
		"app_secret": s.cfg.Feishu.AppSecret,
	}
	bodyBytes, _ := json.Marshal(reqBody)

	resp, err := http.Post(FeishuAppTokenURL, "application/json", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("request feishu: %w", err)
	}
	defer resp.Body.Close()

	var result FeishuAppTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if result.Code != 0 {
		return "", fmt.Errorf("feishu error: %s", result.Msg)
	}

	// 提前60秒过期
	s.rdb.Set(ctx, cacheKey, result.AppAccessToken,
		time.Duration(result.Expire-60)*time.Second)

	return result.AppAccessToken, nil
}

// getFeishuUserToken 获取用户Token
func (s *AuthService) getFeishuUserToken(ctx context.Context, appToken, code string) (string, error) {
	reqBody := map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	}
	bodyBytes, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", FeishuTokenURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+appToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request feishu: %w", err)
	}
	defer resp.Body.Close()

	var result FeishuTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if result.Code != 0 {
		return "", fmt.Errorf("feishu error: %s", result.Msg)
	}

	return result.Data.AccessToken, nil
}

// getFeishuUserInfo 获取用户信息
func (s *AuthService) getFeishuUserInfo(ctx context.Context, userToken string) (*FeishuUserInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", FeishuUserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+userToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feishu: %w", err)
	}
	defer resp.Body.Close()

	var result FeishuUserInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Code != 0 {
		return nil, fmt.Errorf("feishu error: %s", result.Msg)
	}

	return &result, nil
}

// createOrUpdateUser 创建或更新用户
func (s *AuthService) createOrUpdateUser(ctx context.Context, feishuUser *FeishuUserInfoResponse) (*entity.User, error) {
	user, err := s.userRepo.FindByFeishuUserID(ctx, feishuUser.Data.UserId)
	if err != nil && err != repository.ErrNotFound {
		return nil, err
	}

	now := time.Now()

	if user == nil {
		email := feishuUser.Data.Email
		if email == "" {
			email = fmt.Sprintf("feishu_%s@placeholder.local", feishuUser.Data.OpenId[:15])
		}
		username := feishuUser.Data.UserId
		if username == "" {
			username = fmt.Sprintf("feishu_%s", feishuUser.Data.OpenId[:15])
		}

		user = &entity.User{
			ID:           generateID(),
			FeishuUserID: feishuUser.Data.UserId,
			FeishuOpenID: feishuUser.Data.OpenId,
			Username:     username,
			Name:         feishuUser.Data.Name,
			Email:        email,
			Mobile:       feishuUser.Data.Mobile,
			AvatarURL:    feishuUser.Data.AvatarUrl,
			Roles:        entity.StringList{entity.RoleEmployee}, // 默认角色，管理角色由hr_admin后台分配
			Status:       "active",
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	} else {
		if user.FeishuOpenID == "" && feishuUser.Data.OpenId != "" {
			user.FeishuOpenID = feishuUser.Data.OpenId
		}
		user.Name = feishuUser.Data.Name
		if feishuUser.Data.Email != "" {
			user.Email = feishuUser.Data.Email
		}
		user.Mobile = feishuUser.Data.Mobile
		user.AvatarURL = feishuUser.Data.AvatarUrl
		user.UpdatedAt = now

		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	return user, nil
}

// generateTokenPair 生成Token对
func (s *AuthService) generateTokenPair(ctx context.Context, user *entity.User) (*TokenPair, error) {
	now := time.Now()
	jti := uuid.New().String()

	// Access Token
	accessClaims := jwt.MapClaims{
		"sub":        user.ID,
		"uid":        user.ID,
		"name":       user.Name,
		"email":      user.Email,
		"feishu_uid": user.FeishuUserID,
		"roles":      []string(user.Roles),
		"perms":      permsFor(user),
		"iss":        s.cfg.JWT.Issuer,
		"iat":        now.Unix(),
		"exp":        now.Add(s.cfg.JWT.AccessTokenExpire).Unix(),
		"jti":        jti,
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	// Refresh Token
	refreshJti := uuid.New().String()
	refreshClaims := jwt.MapClaims{
		"sub":  user.ID,
		"type": "refresh",
		"iss":  s.cfg.JWT.Issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(s.cfg.JWT.RefreshTokenExpire).Unix(),
		"jti":  refreshJti,
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	// 存储Refresh Token到Redis
	s.rdb.Set(ctx, "hr:token:refresh:"+refreshJti, user.ID, s.cfg.JWT.RefreshTokenExpire)

	return &TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenExpire.Seconds()),
	}, nil
}

// permsFor hr_admin持有通配权限，hr按职能授予细粒度权限，其余角色按角色检查
func permsFor(user *entity.User) []string {
	for _, role := range user.Roles {
		if role == entity.RoleHRAdmin {
			return []string{"*"}
		}
	}
	for _, role := range user.Roles {
		if role == entity.RoleHR {
			return []string{"appraisal.export"}
		}
	}
	return nil
}

// RefreshToken 刷新Token
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	token, err := jwt.Parse(refreshTokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims["type"] != "refresh" {
		return nil, fmt.Errorf("invalid token type")
	}

	// Redis中不存在即视为已失效
	jti, _ := claims["jti"].(string)
	userID, err := s.rdb.Get(ctx, "hr:token:refresh:"+jti).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh token expired or invalid")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}

	// 旧Refresh Token一次性使用
	s.rdb.Del(ctx, "hr:token:refresh:"+jti)

	return s.generateTokenPair(ctx, user)
}

// Logout 登出：吊销Refresh Token
func (s *AuthService) Logout(ctx context.Context, refreshTokenString string) error {
	if refreshTokenString == "" {
		return nil
	}
	token, err := jwt.Parse(refreshTokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if jti, ok := claims["jti"].(string); ok {
			s.rdb.Del(ctx, "hr:token:refresh:"+jti)
		}
	}
	return nil
}

// GetCurrentUser 获取当前用户
func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (*entity.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}
