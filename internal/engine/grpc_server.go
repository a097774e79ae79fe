package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/infra/auth"
	"github.com/xela07ax/latch-escrow/internal/query"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const VaultServiceName = "latch.escrow.v1.VaultService"

// VaultService — контракт gRPC сервиса. Сообщения передаются как google.protobuf.Struct,
// поля совпадают с JSON представлением HTTP API.
type VaultService interface {
	CreateDraft(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Fund(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Release(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Refund(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListVaults(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type GRPCVaultServer struct {
	ctrl *Controller
}

func NewGRPCVaultServer(ctrl *Controller) *GRPCVaultServer {
	return &GRPCVaultServer{ctrl: ctrl}
}

// RegisterVaultService регистрирует сервис на gRPC сервере
func RegisterVaultService(s grpc.ServiceRegistrar, srv VaultService) {
	s.RegisterService(&vaultServiceDesc, srv)
}

func (s *GRPCVaultServer) CreateDraft(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := CreateDraftInput{
		Amount:       amountField(req, "amount"),
		Counterparty: stringField(req, "counterparty"),
		Memo:         stringField(req, "memo"),
	}
	return resultStruct(s.ctrl.CreateDraft(ctx, s.role(ctx), in))
}

func (s *GRPCVaultServer) Fund(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return resultStruct(s.ctrl.Fund(ctx, s.role(ctx), stringField(req, "id")))
}

func (s *GRPCVaultServer) Release(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return resultStruct(s.ctrl.Release(ctx, s.role(ctx), stringField(req, "id")))
}

func (s *GRPCVaultServer) Refund(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return resultStruct(s.ctrl.Refund(ctx, s.role(ctx), stringField(req, "id")))
}

func (s *GRPCVaultServer) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return resultStruct(s.ctrl.Delete(ctx, s.role(ctx), stringField(req, "id")))
}

func (s *GRPCVaultServer) ListVaults(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filter, err := query.ParseFilter(stringField(req, "status"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sortKey, err := query.ParseSort(stringField(req, "sort"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	vaults := s.ctrl.Vaults(query.Params{Filter: filter, Search: stringField(req, "q"), Sort: sortKey})
	return toStruct(map[string]any{"vaults": vaults})
}

// role: из токена/метаданных (см. UnaryAuthInterceptor), иначе выбранная роль
func (s *GRPCVaultServer) role(ctx context.Context) domain.Role {
	if r, ok := auth.RoleFrom(ctx); ok {
		return r
	}
	return s.ctrl.Role()
}

func resultStruct(res Result) (*structpb.Struct, error) {
	out := map[string]any{
		"allowed": res.Decision.Allowed,
		"entry":   res.Entry,
	}
	if !res.Decision.Allowed {
		out["reason"] = res.Decision.Reason
		out["invalid"] = res.Invalid
	}
	if res.Vault != nil {
		out["vault"] = res.Vault
	}
	return toStruct(out)
}

// toStruct проходит через JSON, чтобы теги и Amount.MarshalJSON работали как в HTTP API
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "marshal response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "unmarshal response: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return st, nil
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

// amountField принимает как строку "1.5", так и число 1.5
func amountField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_StringValue:
		return k.StringValue
	}
	return ""
}

func unaryHandler(method string, call func(VaultService, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VaultService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fmt.Sprintf("/%s/%s", VaultServiceName, method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VaultService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var vaultServiceDesc = grpc.ServiceDesc{
	ServiceName: VaultServiceName,
	HandlerType: (*VaultService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateDraft", Handler: unaryHandler("CreateDraft", VaultService.CreateDraft)},
		{MethodName: "Fund", Handler: unaryHandler("Fund", VaultService.Fund)},
		{MethodName: "Release", Handler: unaryHandler("Release", VaultService.Release)},
		{MethodName: "Refund", Handler: unaryHandler("Refund", VaultService.Refund)},
		{MethodName: "Delete", Handler: unaryHandler("Delete", VaultService.Delete)},
		{MethodName: "ListVaults", Handler: unaryHandler("ListVaults", VaultService.ListVaults)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "latch/escrow/v1/vault.proto",
}
