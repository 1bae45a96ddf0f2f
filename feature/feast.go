package feature

import (
	"context"
	"fmt"
	"time"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	feasttypes "github.com/feast-dev/feast/sdk/go/protos/feast/types"
	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/pkg/conv"
)

// Feast 特征名约定：user_profile 特征视图下的两个在线特征。
const (
	feastFeatureInterests        = "user_profile:interests"
	feastFeatureInteractionCount = "user_profile:interaction_count"
)

// FeastProvider 是基于 Feast Feature Store 的画像提供者（可选）。
//
// 适用场景：画像由独立的特征工程链路离线计算并物化到 Feast 在线存储，
// 本服务只做在线读取。未部署 Feast 时使用 feature.Service（从交互存储
// 实时聚合）即可。
//
// 工程特征：
//   - 实时性：优秀（gRPC 在线特征查询）
//   - 与交互存储解耦：画像口径由特征视图定义
type FeastProvider struct {
	client  *feastsdk.GrpcClient
	project string
	log     *zap.Logger
}

// NewFeastProvider 连接 Feast Feature Server。
func NewFeastProvider(host string, port int, project string, logger *zap.Logger) (*FeastProvider, error) {
	if port == 0 {
		port = 6565
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := feastsdk.NewGrpcClient(host, port)
	if err != nil {
		return nil, fmt.Errorf("connect feast %s:%d: %w", host, port, err)
	}

	return &FeastProvider{
		client:  client,
		project: project,
		log:     logger,
	}, nil
}

// Profile 从 Feast 在线存储读取用户画像特征。
// 特征缺失时退回空画像，不报错。
func (p *FeastProvider) Profile(ctx context.Context, userID string) (*core.UserProfile, error) {
	req := &feastsdk.OnlineFeaturesRequest{
		Features: []string{feastFeatureInterests, feastFeatureInteractionCount},
		Entities: []feastsdk.Row{
			{"user_id": feastsdk.StrVal(userID)},
		},
		Project: p.project,
	}

	resp, err := p.client.GetOnlineFeatures(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("feast get online features: %w", err)
	}

	profile := core.NewUserProfile(userID)
	profile.UpdateTime = time.Now()

	rows := resp.Rows()
	if len(rows) == 0 {
		return profile, nil
	}
	row := rows[0]

	if val, ok := row[feastFeatureInteractionCount]; ok {
		if n, ok := conv.ToInt(extractValue(val)); ok {
			profile.InteractionCount = n
		}
	}
	if val, ok := row[feastFeatureInterests]; ok {
		if interests := conv.SliceAnyToString(extractValue(val)); interests != nil {
			profile.Interests = interests
		}
	}
	return profile, nil
}

// extractValue 将 Feast 的 protobuf Value 转为 Go 原生类型。
func extractValue(v *feasttypes.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Val.(type) {
	case *feasttypes.Value_StringVal:
		return val.StringVal
	case *feasttypes.Value_Int32Val:
		return val.Int32Val
	case *feasttypes.Value_Int64Val:
		return val.Int64Val
	case *feasttypes.Value_FloatVal:
		return val.FloatVal
	case *feasttypes.Value_DoubleVal:
		return val.DoubleVal
	case *feasttypes.Value_BoolVal:
		return val.BoolVal
	case *feasttypes.Value_StringListVal:
		out := make([]any, 0, len(val.StringListVal.Val))
		for _, s := range val.StringListVal.Val {
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

var _ core.ProfileProvider = (*FeastProvider)(nil)
