package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront_back_end/internal/config"
)

// =============================================
// REDIS
// =============================================

// ConnectRedis ouvre le client et vérifie la connexion
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connexion Redis %s : %w", cfg.Addr, err)
	}
	log.Info("✅ Connecté à Redis", zap.String("addr", cfg.Addr))
	return rdb, nil
}

// =============================================
// SCYLLA DB
// =============================================

func newScyllaCluster(cfg config.ScyllaConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.Timeout
	cluster.NumConns = 4
	cluster.ReconnectInterval = time.Second
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	return cluster
}

// ConnectScylla ouvre la session du keyspace des commandes.
// Les tables sont créées via scripts/scylladb_init.cql.
func ConnectScylla(cfg config.ScyllaConfig, log *zap.Logger) (*gocql.Session, error) {
	if len(cfg.Hosts) == 0 || cfg.Keyspace == "" {
		return nil, fmt.Errorf("ScyllaDB non configuré (SCYLLA_HOSTS / SCYLLA_KS_ORDERS_KEYSPACE)")
	}
	session, err := newScyllaCluster(cfg).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("création session ScyllaDB pour %s : %w", cfg.Keyspace, err)
	}
	log.Info("✅ Session ScyllaDB ouverte",
		zap.String("keyspace", cfg.Keyspace), zap.String("role", cfg.Username))
	return session, nil
}

// =============================================
// MINIO
// =============================================

// ConnectMinIO ouvre le client et crée le bucket s'il n'existe pas
func ConnectMinIO(ctx context.Context, cfg config.MinIOConfig, log *zap.Logger) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("client MinIO : %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("vérification bucket %s : %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("création bucket %s : %w", cfg.Bucket, err)
		}
		log.Info("🪣 Bucket créé", zap.String("bucket", cfg.Bucket))
	}

	log.Info("✅ Connecté à MinIO", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket))
	return client, nil
}
